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

// Echo message server for the simplepipe transport: every received
// message is answered with "echo: <message>".
package main

import (
	"bufio"
	"context"
	"flag"
	"os"

	"github.com/pterm/pterm"

	"github.com/abtcomm/simplepipe"
)

func main() {
	pipeName := flag.String("pipe", `\\.\pipe\SimplePipeTest`, "named pipe to serve")
	flag.Parse()

	var server *simplepipe.Server
	server, err := simplepipe.NewServer(*pipeName, func(ev simplepipe.Event) {
		// Event callbacks may arrive on a different goroutine.
		switch ev.Type {
		case simplepipe.Connected:
			pterm.Info.Println("connected")
		case simplepipe.Disconnected:
			pterm.Info.Println("disconnected")
		case simplepipe.Received:
			msg := string(ev.Data)
			pterm.Info.Println(msg)
			if err := server.Write(context.Background(), []byte("echo: "+msg)); err != nil {
				pterm.Error.Printfln("echo failed: %v", err)
			}
		case simplepipe.Exception:
			pterm.Error.Printfln("exception occurred: %v", ev.Err)
		}
	})
	if err != nil {
		pterm.Error.Printfln("start server: %v", err)
		os.Exit(1)
	}
	defer server.Close()

	pterm.Info.Printfln("serving on %s, press enter to exit", server.PipeName())
	bufio.NewReader(os.Stdin).ReadString('\n')
}
