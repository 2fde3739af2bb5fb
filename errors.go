/*
   Copyright The SimplePipe Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

package simplepipe

import (
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

var (
	// ErrProtocol is returned when a packet arrives that violates the
	// framing protocol, such as a continuation packet while the start of a
	// message is expected.
	ErrProtocol = errors.New("simplepipe: protocol error")

	// ErrClosed is returned by endpoint methods when the endpoint has been
	// closed or its connection torn down.
	ErrClosed = errors.New("simplepipe: closed")

	// ErrNotConnected is returned when writing on a server that has no
	// client attached.
	ErrNotConnected = errors.New("simplepipe: no client connected")

	// ErrBadHeader is wrapped by errors reporting an inbound packet header
	// that failed structural validation.
	ErrBadHeader = errors.New("simplepipe: malformed packet header")
)

func headerError(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrBadHeader, fmt.Sprintf(format, args...))
}

// MessageTooLargeErr is used to indicate refusal to carry an oversized
// message. It wraps a ResourceExhausted grpc Status together with the
// offending message length.
type MessageTooLargeErr struct {
	messageLength int64
	maxLength     int
	err           error
}

// MessageTooLargeError returns a MessageTooLargeErr for the given message
// length if it exceeds the allowed maximum. Otherwise a nil error is
// returned.
func MessageTooLargeError(messageLength int64, maxLength int) error {
	if messageLength <= int64(maxLength) {
		return nil
	}

	return &MessageTooLargeErr{
		messageLength: messageLength,
		maxLength:     maxLength,
		err:           status.Newf(codes.ResourceExhausted, "message length %d exceeds maximum message size of %d", messageLength, maxLength).Err(),
	}
}

// Error returns the error message for the corresponding grpc Status for the error.
func (e *MessageTooLargeErr) Error() string {
	return e.err.Error()
}

// Unwrap returns the corresponding error with our grpc status code.
func (e *MessageTooLargeErr) Unwrap() error {
	return e.err
}

// RejectedLength retrieves the rejected message length which triggered the error.
func (e *MessageTooLargeErr) RejectedLength() int64 {
	return e.messageLength
}

// MaximumLength retrieves the maximum allowed message length that triggered the error.
func (e *MessageTooLargeErr) MaximumLength() int {
	return e.maxLength
}
