package scrape

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"net"
	"strings"
)

const (
	msgBotProtection = "This site blocks automatic access. Please use manual entry instead."
	msgEmptyContent  = "Could not find job details on this page. It may require login or use manual entry."
	msgExpired       = "This LinkedIn job posting has expired. Please use manual entry instead."
	msgTooManyHops   = "This page redirected too many times. Try using manual entry instead."

	msgTimeout  = "The page took too long to load. Try again or use manual entry."
	msgConnect  = "Could not connect to the site. Check your internet or try manual entry."
	msgSecurity = "Security issue with this site. Try using manual entry instead."
	msgNetwork  = "Something went wrong loading this page. Try using manual entry."
)

func httpStatusMessage(status int) string {
	switch {
	case status == 401 || status == 403:
		return "This page requires login or blocked our request. Try using manual entry."
	case status == 404:
		return "This job posting may have been removed or the link is broken."
	case status == 429:
		return "Too many requests. Please wait a moment and try again."
	case status >= 500 && status <= 599:
		return "The job site is having issues right now. Try again later or use manual entry."
	default:
		return "Could not load this page. Try using manual entry instead."
	}
}

// networkMessage maps a transport failure to the text shown to the user.
// Typed checks come first; the keyword scan catches whatever they miss.
func networkMessage(err error) string {
	if err == nil {
		return msgNetwork
	}

	var ne net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &ne) && ne.Timeout()) {
		return msgTimeout
	}
	if isTLSError(err) {
		return msgSecurity
	}
	var dnsErr *net.DNSError
	var opErr *net.OpError
	if errors.As(err, &dnsErr) || errors.As(err, &opErr) {
		return msgConnect
	}

	lower := strings.ToLower(err.Error())
	switch {
	case strings.Contains(lower, "timeout") || strings.Contains(lower, "timed out"):
		return msgTimeout
	case strings.Contains(lower, "network") || strings.Contains(lower, "connect") || strings.Contains(lower, "dns"):
		return msgConnect
	case strings.Contains(lower, "ssl") || strings.Contains(lower, "certificate") || strings.Contains(lower, "tls"):
		return msgSecurity
	}
	return msgNetwork
}

func isTLSError(err error) bool {
	var (
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
		unknownAuth x509.UnknownAuthorityError
		hostErr     x509.HostnameError
		invalidErr  x509.CertificateInvalidError
	)
	return errors.As(err, &verifyErr) ||
		errors.As(err, &recordErr) ||
		errors.As(err, &unknownAuth) ||
		errors.As(err, &hostErr) ||
		errors.As(err, &invalidErr)
}
