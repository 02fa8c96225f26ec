package fetch

import "net/http"

// Kind is the variant of a fetch Outcome.
type Kind string

const (
	// KindSuccess carries a parsed 2xx body.
	KindSuccess Kind = "success"

	// KindEmpty means the provider reported that it has no records.
	KindEmpty Kind = "empty"

	// KindRetryable is a transient failure; the retry policy re-issues the request.
	KindRetryable Kind = "retryable"

	// KindFatal is terminal for the unit and for the run.
	KindFatal Kind = "fatal"
)

// Reason names why an Outcome is not a plain success.
type Reason string

const (
	ReasonNone              Reason = ""
	ReasonNoData            Reason = "no_data"
	ReasonUnauthorized      Reason = "unauthorized"
	ReasonServerError       Reason = "server_error"
	ReasonRateLimited       Reason = "rate_limited"
	ReasonUnexpectedStatus  Reason = "unexpected_status"
	ReasonRetriesExhausted  Reason = "retries_exhausted"
	ReasonNetwork           Reason = "network"
	ReasonMalformedResponse Reason = "malformed_response"
	ReasonCanceled          Reason = "canceled"
	ReasonInvalidRequest    Reason = "invalid_request"
)

// Rule maps a status predicate to an outcome variant.
type Rule struct {
	Name   string
	Match  func(status int) bool
	Kind   Kind
	Reason Reason
}

// Rules is an ordered classification chain. The first matching rule wins.
type Rules []Rule

func statusIs(code int) func(int) bool {
	return func(status int) bool { return status == code }
}

func isServerError(status int) bool { return status >= 500 }

func isSuccess(status int) bool { return status >= 200 && status < 300 }

func isNotSuccess(status int) bool { return !isSuccess(status) }

var (
	ruleUnauthorized = Rule{Name: "unauthorized", Match: statusIs(http.StatusUnauthorized), Kind: KindFatal, Reason: ReasonUnauthorized}
	ruleNotFound     = Rule{Name: "not_found", Match: statusIs(http.StatusNotFound), Kind: KindEmpty, Reason: ReasonNoData}
	ruleServerError  = Rule{Name: "server_error", Match: isServerError, Kind: KindRetryable, Reason: ReasonServerError}
	ruleRateLimited  = Rule{Name: "rate_limited", Match: statusIs(http.StatusTooManyRequests), Kind: KindRetryable, Reason: ReasonRateLimited}
	ruleUnexpected   = Rule{Name: "unexpected_status", Match: isNotSuccess, Kind: KindFatal, Reason: ReasonUnexpectedStatus}
	ruleSuccess      = Rule{Name: "success", Match: isSuccess, Kind: KindSuccess}
)

// FlightsRules is the flights provider chain: 401, 404, 5xx, 429, other non-2xx, 2xx.
func FlightsRules() Rules {
	return Rules{ruleUnauthorized, ruleNotFound, ruleServerError, ruleRateLimited, ruleUnexpected, ruleSuccess}
}

// WeatherRules is FlightsRules without the 404-as-empty convention; a 404
// from the weather archive is an unexpected status.
func WeatherRules() Rules {
	return Rules{ruleUnauthorized, ruleServerError, ruleRateLimited, ruleUnexpected, ruleSuccess}
}

// Classify returns the variant of the first rule matching status. Statuses
// no rule matches (1xx, 3xx never followed) are unexpected.
func (r Rules) Classify(status int) (Kind, Reason) {
	for _, rule := range r {
		if rule.Match(status) {
			return rule.Kind, rule.Reason
		}
	}
	return KindFatal, ReasonUnexpectedStatus
}
