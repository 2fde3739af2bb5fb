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

package otelpipe

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/abtcomm/simplepipe"
)

func TestEventHandlerPassesEventsThrough(t *testing.T) {
	var got []simplepipe.Event
	h := EventHandler(func(ev simplepipe.Event) {
		got = append(got, ev)
	}, WithTracerProvider(noop.NewTracerProvider()))

	payload := []byte("instrumented")
	h(simplepipe.Event{Type: simplepipe.Connected})
	h(simplepipe.Event{Type: simplepipe.Received, Data: payload})
	h(simplepipe.Event{Type: simplepipe.Exception, Err: errors.New("watcher died")})

	assert.Len(t, got, 3)
	assert.Equal(t, simplepipe.Connected, got[0].Type)
	assert.Equal(t, payload, got[1].Data)
	assert.Error(t, got[2].Err)
}
