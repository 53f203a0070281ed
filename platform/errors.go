// Copyright 2026 The Guildbot Authors
// SPDX-License-Identifier: Apache-2.0

package platform

import "fmt"

// ExternalError wraps a failed platform operation. Callers that need
// to distinguish "the platform said no" from local failures match on
// this type; Op names the client method that failed.
type ExternalError struct {
	Op  string
	Err error
}

func (e *ExternalError) Error() string {
	return fmt.Sprintf("platform: %s: %v", e.Op, e.Err)
}

func (e *ExternalError) Unwrap() error { return e.Err }
