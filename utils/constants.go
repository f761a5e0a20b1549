package utils

// Identity headers set by the upstream gateway after authentication.
const (
	HeaderUserID    = "X-User-ID"
	HeaderUserRole  = "X-User-Role"
	HeaderUserEmail = "X-User-Email"
)

// Razorpay webhook headers.
const (
	HeaderRazorpaySignature = "X-Razorpay-Signature"
	HeaderRazorpayEventID   = "X-Razorpay-Event-Id"
)

// DLQ listing limits.
const (
	DefaultDLQLimit = 50
	MaxDLQLimit     = 500
)
