//go:build windows

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

// Echo client for the simplepipe transport: sends one message and prints
// the server's reply.
package main

import (
	"context"
	"errors"
	"flag"
	"os"

	"github.com/pterm/pterm"

	"github.com/abtcomm/simplepipe"
)

func main() {
	pipeName := flag.String("pipe", `\\.\pipe\SimplePipeTest`, "named pipe to connect to")
	message := flag.String("message", "HELLO WORLD!", "message to send")
	flag.Parse()

	received := make(chan struct{}, 1)
	client, err := simplepipe.NewClient(*pipeName, func(ev simplepipe.Event) {
		// Event callbacks may arrive on a different goroutine.
		switch ev.Type {
		case simplepipe.Disconnected:
			pterm.Info.Println("disconnected")
			signal(received)
		case simplepipe.Received:
			pterm.Info.Println(string(ev.Data))
			signal(received)
		case simplepipe.Exception:
			// The session cannot continue; release the wait below.
			pterm.Error.Printfln("exception occurred: %v", ev.Err)
			signal(received)
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			pterm.Error.Printfln("no server on %s", *pipeName)
		} else {
			pterm.Error.Printfln("open pipe: %v", err)
		}
		os.Exit(1)
	}
	defer client.Close()

	if err := client.Write(context.Background(), []byte(*message)); err != nil {
		pterm.Error.Printfln("write failed: %v", err)
		os.Exit(1)
	}

	<-received
}

// signal never blocks the watcher goroutine delivering the event.
func signal(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
