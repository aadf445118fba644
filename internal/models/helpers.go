package models

// StringPtr returns a pointer to s. Convenience for optional fields.
func StringPtr(s string) *string {
	return &s
}
