//go:build !production

package otp

// bypassCompiledIn is false in builds tagged "production"; the configured bypass code is then ignored.
const bypassCompiledIn = true
