// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package testhelper holds shared helpers for tests.
package testhelper

import (
	"net/http"
)

// MockRoundTripper is a http.RoundTripper that delegates to Fn. It allows tests to
// intercept HTTP requests without a network.
type MockRoundTripper struct {
	Fn func(req *http.Request) (*http.Response, error)
}

// RoundTrip satisfies the http.RoundTripper interface.
func (m MockRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	return m.Fn(req)
}
