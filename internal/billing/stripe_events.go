package billing

import (
	"encoding/json"
	"time"
)

// expandable decodes a field the provider sends either as an id or as an expanded object
type expandable struct {
	ID  string
	Raw json.RawMessage
}

func (e *expandable) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &e.ID)
	}
	var obj struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(b, &obj); err != nil {
		return err
	}
	e.ID = obj.ID
	e.Raw = append(json.RawMessage(nil), b...)
	return nil
}

type stripePeriod struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type stripeSubscription struct {
	ID                 string            `json:"id"`
	Customer           expandable        `json:"customer"`
	Status             string            `json:"status"`
	Metadata           map[string]string `json:"metadata"`
	CurrentPeriodStart int64             `json:"current_period_start"`
	CurrentPeriodEnd   int64             `json:"current_period_end"`
	TrialStart         int64             `json:"trial_start"`
	TrialEnd           int64             `json:"trial_end"`
	CancelAtPeriodEnd  bool              `json:"cancel_at_period_end"`
	CanceledAt         int64             `json:"canceled_at"`
	Items              struct {
		Data []struct {
			CurrentPeriodStart int64 `json:"current_period_start"`
			CurrentPeriodEnd   int64 `json:"current_period_end"`
			Price              struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeObject struct {
	ID                string            `json:"id"`
	Object            string            `json:"object"`
	Customer          expandable        `json:"customer"`
	Subscription      expandable        `json:"subscription"`
	Metadata          map[string]string `json:"metadata"`
	ClientReferenceID string            `json:"client_reference_id"`

	// invoices
	Lines struct {
		Data []struct {
			Period stripePeriod `json:"period"`
		} `json:"data"`
	} `json:"lines"`
	Parent struct {
		SubscriptionDetails struct {
			Subscription expandable        `json:"subscription"`
			Metadata     map[string]string `json:"metadata"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func unixPtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0).UTC()
	return &t
}

func unixTime(ts int64) time.Time {
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0).UTC()
}

// toState reads period bounds from the subscription, or from its first item
// on API versions that moved them there
func (s *stripeSubscription) toState() *SubscriptionState {
	state := &SubscriptionState{
		ID:                s.ID,
		Status:            s.Status,
		TrialStart:        unixPtr(s.TrialStart),
		TrialEnd:          unixPtr(s.TrialEnd),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		CanceledAt:        unixPtr(s.CanceledAt),
	}

	start, end := s.CurrentPeriodStart, s.CurrentPeriodEnd
	if len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		state.PriceID = item.Price.ID
		if start == 0 {
			start, end = item.CurrentPeriodStart, item.CurrentPeriodEnd
		}
	}
	state.CurrentPeriodStart = unixTime(start)
	state.CurrentPeriodEnd = unixTime(end)
	return state
}

func mergeMetadata(dst map[string]string, src map[string]string) map[string]string {
	if len(src) == 0 {
		return dst
	}
	if dst == nil {
		dst = make(map[string]string, len(src))
	}
	for k, v := range src {
		if _, ok := dst[k]; !ok {
			dst[k] = v
		}
	}
	return dst
}

func decodeStripeObject(event *Event, raw json.RawMessage) error {
	var obj stripeObject
	if err := json.Unmarshal(raw, &obj); err != nil {
		return err
	}

	switch obj.Object {
	case "subscription":
		var sub stripeSubscription
		if err := json.Unmarshal(raw, &sub); err != nil {
			return err
		}
		event.Subscription = sub.toState()
		event.SubscriptionID = sub.ID
		event.CustomerID = sub.Customer.ID
		event.Metadata = mergeMetadata(event.Metadata, sub.Metadata)

	case "checkout.session":
		event.CustomerID = obj.Customer.ID
		event.SubscriptionID = obj.Subscription.ID
		event.Metadata = mergeMetadata(event.Metadata, obj.Metadata)
		if obj.ClientReferenceID != "" {
			event.Metadata = mergeMetadata(event.Metadata, map[string]string{"user_id": obj.ClientReferenceID})
		}
		if len(obj.Subscription.Raw) > 0 {
			var sub stripeSubscription
			if err := json.Unmarshal(obj.Subscription.Raw, &sub); err != nil {
				return err
			}
			event.Subscription = sub.toState()
			event.Metadata = mergeMetadata(event.Metadata, sub.Metadata)
		}

	case "invoice":
		event.CustomerID = obj.Customer.ID
		event.SubscriptionID = obj.Subscription.ID
		if event.SubscriptionID == "" {
			event.SubscriptionID = obj.Parent.SubscriptionDetails.Subscription.ID
		}
		event.Metadata = mergeMetadata(event.Metadata, obj.Parent.SubscriptionDetails.Metadata)
		if len(obj.Lines.Data) > 0 {
			period := obj.Lines.Data[0].Period
			event.Subscription = &SubscriptionState{
				ID:                 event.SubscriptionID,
				CurrentPeriodStart: unixTime(period.Start),
				CurrentPeriodEnd:   unixTime(period.End),
			}
		}

	default:
		event.Metadata = mergeMetadata(event.Metadata, obj.Metadata)
	}
	return nil
}
