package internaldefs

import (
	membership "github.com/MrEthical07/goMembership"
)

// BucketCount is the number of validate latency buckets, +Inf included.
const BucketCount = 8

// CounterDef names one engine counter for export.
type CounterDef struct {
	ID   membership.MetricID
	Name string
	Help string
}

// HistogramDef names one engine histogram for export.
type HistogramDef struct {
	ID   membership.MetricID
	Name string
	Help string
}

// AuditDropped is exported next to the engine counters but read from the
// audit dispatcher instead of the snapshot.
var AuditDropped = CounterDef{
	Name: "membership_audit_dropped_total",
	Help: "Audit events dropped because the dispatcher queue was full or the caller stopped waiting.",
}

// CounterDefs lists every exported counter in render order.
var CounterDefs = []CounterDef{
	{ID: membership.MetricUserCreated, Name: "membership_user_created_total", Help: "Users created."},
	{ID: membership.MetricUserCreateRejected, Name: "membership_user_create_rejected_total", Help: "CreateUser calls rejected for invalid input."},
	{ID: membership.MetricUserCreateDuplicate, Name: "membership_user_create_duplicate_total", Help: "CreateUser calls rejected for a duplicate username, email or key."},
	{ID: membership.MetricValidateSuccess, Name: "membership_validate_success_total", Help: "Credential checks that succeeded."},
	{ID: membership.MetricValidateFailure, Name: "membership_validate_failure_total", Help: "Credential checks that failed."},
	{ID: membership.MetricAccountLocked, Name: "membership_account_locked_total", Help: "Accounts locked after too many failures."},
	{ID: membership.MetricAccountUnlocked, Name: "membership_account_unlocked_total", Help: "Accounts unlocked by an administrator."},
	{ID: membership.MetricPasswordChanged, Name: "membership_password_changed_total", Help: "Passwords changed by their owner."},
	{ID: membership.MetricPasswordChangeFailure, Name: "membership_password_change_failure_total", Help: "Rejected password changes."},
	{ID: membership.MetricQuestionAndAnswerChanged, Name: "membership_question_and_answer_changed_total", Help: "Password question and answer changes."},
	{ID: membership.MetricPasswordReset, Name: "membership_password_reset_total", Help: "Passwords reset to a generated value."},
	{ID: membership.MetricPasswordAnswerFailure, Name: "membership_password_answer_failure_total", Help: "Wrong password answers."},
	{ID: membership.MetricUserUpdated, Name: "membership_user_updated_total", Help: "User profile updates."},
	{ID: membership.MetricUserDeleted, Name: "membership_user_deleted_total", Help: "Users deleted."},
	{ID: membership.MetricRoleCreated, Name: "membership_role_created_total", Help: "Roles created."},
	{ID: membership.MetricRoleDeleted, Name: "membership_role_deleted_total", Help: "Roles deleted."},
	{ID: membership.MetricRoleMembershipChanged, Name: "membership_role_membership_changed_total", Help: "Account role sets rewritten."},
	{ID: membership.MetricStoreError, Name: "membership_store_error_total", Help: "Document store failures surfaced to callers."},
}

// HistogramDefs lists every exported histogram.
var HistogramDefs = []HistogramDef{
	{ID: membership.MetricValidateLatency, Name: "membership_validate_latency_seconds", Help: "ValidateUser latency."},
}

// HistogramBounds are the upper bounds of the latency buckets, in seconds.
var HistogramBounds = [BucketCount]string{
	"0.01",
	"0.025",
	"0.05",
	"0.1",
	"0.25",
	"0.5",
	"1",
	"+Inf",
}

// HistogramBoundSuffix is HistogramBounds spelled for instrument names.
var HistogramBoundSuffix = [BucketCount]string{
	"0_01",
	"0_025",
	"0_05",
	"0_1",
	"0_25",
	"0_5",
	"1",
	"inf",
}

// CumulativeBuckets pads or truncates raw to BucketCount and returns running totals.
func CumulativeBuckets(raw []uint64) [BucketCount]uint64 {
	var out [BucketCount]uint64
	var running uint64
	for i := 0; i < BucketCount; i++ {
		if i < len(raw) {
			running += raw[i]
		}
		out[i] = running
	}
	return out
}
