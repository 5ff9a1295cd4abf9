// Package webhooks pushes catalog and blog changes to external
// subscribers.
//
// Administrators register subscriptions naming a target URL and the
// event types it cares about. The dispatcher fans matching events out
// asynchronously: payloads are signed with HMAC-SHA256 when the
// subscription carries a secret, failed calls are retried with
// exponential backoff, and recent attempts stay queryable through the
// admin API. Events originate in the audit pipeline: an AuditBridge
// registered as one more audit sink republishes successful mutations,
// so every write that reaches the audit trail also reaches subscribers.
//
// Each delivery carries X-Biblio-Event, X-Biblio-Event-ID,
// X-Biblio-Delivery and, when signed, X-Biblio-Signature headers. A
// subscription may opt for a Slack-compatible payload instead of the
// signed JSON envelope.
package webhooks
