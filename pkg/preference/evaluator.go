package preference

import (
	"github.com/dmitrymomot/notifykit/pkg/notification"
)

// Outcome is the evaluator verdict for one message on one channel.
type Outcome string

const (
	Allow Outcome = "ALLOW"
	Deny  Outcome = "DENY"
	Defer Outcome = "DEFER"
)

// Reasons attached to decisions.
const (
	ReasonImportant         = "important"
	ReasonRecipientNotFound = "recipient_not_found"
	ReasonNoContactAddress  = "no_contact_address"
	ReasonNotifyDisabled    = "notifications_disabled"
	ReasonNoSubscription    = "no_subscription"
	ReasonNotDefaultChannel = "not_default_channel"
	ReasonPreferredChannel  = "preferred_channel_mismatch"
	ReasonSubscribed        = "subscribed"
	ReasonConsolidationOff  = "consolidation_disabled"
)

// Input is everything the evaluator needs to decide. It holds no stores;
// callers resolve the profile and subscriptions first.
type Input struct {
	Channel   notification.Channel
	Important bool
	Tag       string
	// Profile is nil when the recipient has no contact details.
	Profile       *notification.RecipientProfile
	Subscriptions []notification.DigestSubscription
	Consolidation bool
}

// Decision is the evaluator result.
type Decision struct {
	Outcome Outcome
	Reason  string
	// Address is the verified contact address for the channel; set unless the
	// outcome is Deny.
	Address string
	// Subscription is the matching digest subscription when Outcome is Defer.
	Subscription *notification.DigestSubscription
}

// Evaluate decides whether a message may be sent now, must be dropped, or
// should wait for its digest. It has no side effects.
//
// Rules, in order:
//   - a recipient without a verified address for the channel is denied;
//   - important messages are allowed;
//   - recipients that turned notifications off are denied;
//   - without a subscription for the tag only the default channel is allowed;
//   - a subscription preferring another channel denies this one;
//   - a subscription on this channel defers, or allows when consolidation is off.
func Evaluate(in Input) Decision {
	if in.Profile == nil {
		return deny(ReasonRecipientNotFound)
	}
	addr, ok := in.Profile.Address(in.Channel)
	if !ok {
		return deny(ReasonNoContactAddress)
	}
	if in.Important {
		return Decision{Outcome: Allow, Reason: ReasonImportant, Address: addr}
	}
	if !in.Profile.AllowNotify {
		return deny(ReasonNotifyDisabled)
	}

	sub := MatchSubscription(in.Subscriptions, in.Tag)
	if sub == nil {
		if in.Channel != notification.DefaultChannel {
			return deny(ReasonNotDefaultChannel)
		}
		return Decision{Outcome: Allow, Reason: ReasonNoSubscription, Address: addr}
	}
	if sub.PreferredChannel != in.Channel {
		return deny(ReasonPreferredChannel)
	}
	if !in.Consolidation {
		return Decision{Outcome: Allow, Reason: ReasonConsolidationOff, Address: addr}
	}
	return Decision{Outcome: Defer, Reason: ReasonSubscribed, Address: addr, Subscription: sub}
}

// MatchSubscription returns the subscription whose configuration tag equals
// tag. Untagged messages never match.
func MatchSubscription(subs []notification.DigestSubscription, tag string) *notification.DigestSubscription {
	if tag == "" {
		return nil
	}
	for i := range subs {
		if subs[i].Configuration.Tag == tag {
			return &subs[i]
		}
	}
	return nil
}

func deny(reason string) Decision {
	return Decision{Outcome: Deny, Reason: reason}
}
