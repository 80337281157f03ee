////////////////////////////////////////////////////////////////////////////////
// Copyright © 2022 xx foundation                                             //
//                                                                            //
// Use of this source code is governed by a license that can be found in the  //
// LICENSE file                                                               //
////////////////////////////////////////////////////////////////////////////////

// Package cmd initializes the CLI and config parsers as well as the logger,
// and wires a terminal chat session for manual testing against a live
// server.
package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	jww "github.com/spf13/jwalterweatherman"
	"github.com/spf13/viper"
	"gitlab.com/elixxir/ekv"

	"gitlab.com/elixxir/dmsync/dm"
	"gitlab.com/elixxir/dmsync/events"
	"gitlab.com/elixxir/dmsync/storage"
	"gitlab.com/elixxir/dmsync/ws"
)

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dmsync",
	Short: "Opens a terminal chat session against a dmsync server",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		initLog(viper.GetUint("logLevel"), viper.GetString("log"))

		me := viper.GetString("me")
		peer := viper.GetString("peer")
		if me == "" || peer == "" {
			jww.FATAL.Panicf("both --me and --peer are required")
		}

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		swb := events.New()

		header := http.Header{}
		if token := viper.GetString("token"); token != "" {
			header.Set("Authorization", "Bearer "+token)
		}
		feed, err := ws.Dial(ctx, viper.GetString("feed"), header, swb)
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer feed.Close()

		var archive dm.Archive
		if dbPath := viper.GetString("db"); dbPath != "" {
			archive, err = storage.NewArchive(dbPath)
			if err != nil {
				jww.FATAL.Panicf("%+v", err)
			}
		}

		kv, err := openStateStore(viper.GetString("state"),
			viper.GetString("password"))
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		session, err := dm.NewSession(dm.Config{
			LocalUserID: me,
			PeerID:      peer,
			Transport: newHTTPTransport(
				viper.GetString("server"), viper.GetString("token"), me),
			Switchboard:   swb,
			Callbacks:     &terminalCallbacks{out: os.Stdout},
			Archive:       archive,
			KV:            kv,
			TypingEmitter: feed,
		})
		if err != nil {
			jww.FATAL.Panicf("%+v", err)
		}

		if err = session.Start(ctx); err != nil {
			jww.FATAL.Panicf("%+v", err)
		}
		defer session.Close()
		session.MarkViewing(true)

		for _, msg := range session.Messages() {
			printMessage(os.Stdout, msg)
		}

		runPrompt(os.Stdin, os.Stdout, session)
	},
}

// openStateStore picks the engine's key-value backend: a passworded
// filestore when a path is given, in-memory otherwise.
func openStateStore(path, password string) (ekv.KeyValue, error) {
	if path == "" {
		return ekv.MakeMemstore(), nil
	}
	return ekv.NewFilestore(path, password)
}

// runPrompt reads lines from the terminal until EOF or /quit. Plain lines
// are sent as messages; commands start with a slash.
func runPrompt(in io.Reader, out io.Writer, session *dm.Session) {
	fmt.Fprintln(out, "connected; type a message, "+
		"/react <id> <emoji>, /goto <id>, /clear, or /quit")

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "":
			continue

		case line == "/quit":
			return

		case line == "/clear":
			session.ClearConversation()
			fmt.Fprintln(out, "conversation cleared")

		case strings.HasPrefix(line, "/react "):
			fields := strings.Fields(line)
			if len(fields) != 3 {
				fmt.Fprintln(out, "usage: /react <id> <emoji>")
				continue
			}
			err := session.ToggleReaction(dm.MessageID(fields[1]), fields[2])
			if err != nil {
				fmt.Fprintf(out, "reaction failed: %s\n", err)
			}

		case strings.HasPrefix(line, "/goto "):
			id := dm.MessageID(strings.TrimSpace(
				strings.TrimPrefix(line, "/goto ")))
			if pos, ok := session.ScrollTo(id); ok {
				fmt.Fprintf(out, "message %s is at position %d\n", id, pos)
			} else {
				fmt.Fprintf(out, "message %s is not available here\n", id)
			}

		default:
			session.Keystroke()
			if _, err := session.Send(dm.SendRequest{Text: line}); err != nil {
				fmt.Fprintf(out, "send failed: %s\n", err)
			}
		}
	}
}

// terminalCallbacks prints engine notifications to the terminal.
type terminalCallbacks struct {
	out io.Writer
}

func (tc *terminalCallbacks) TimelineChanged(id dm.MessageID) {
	if id == "" {
		return
	}
	jww.DEBUG.Printf("timeline changed at %s", id)
}

func (tc *terminalCallbacks) SendFailed(tempID dm.MessageID, err error) {
	fmt.Fprintf(tc.out, "!! send %s failed: %s\n", tempID, err)
}

func (tc *terminalCallbacks) PeerTyping(typing bool) {
	if typing {
		fmt.Fprintln(tc.out, ".. peer is typing")
	} else {
		fmt.Fprintln(tc.out, ".. peer stopped typing")
	}
}

func printMessage(out io.Writer, msg dm.Message) {
	body := msg.Body
	if msg.Deleted {
		body = "(deleted)"
	}
	fmt.Fprintf(out, "[%s] %s: %s (%s)\n",
		msg.CreatedAt.Format("15:04:05"), msg.SenderID, body, msg.Status)
}

func initLog(threshold uint, logPath string) {
	if logPath != "-" && logPath != "" {
		// Disable stdout output
		jww.SetStdoutOutput(io.Discard)
		// Use log file
		logOutput, err := os.OpenFile(logPath,
			os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			panic(err.Error())
		}
		jww.SetLogOutput(logOutput)
	}

	if threshold > 1 {
		jww.INFO.Printf("log level set to: TRACE")
		jww.SetStdoutThreshold(jww.LevelTrace)
		jww.SetLogThreshold(jww.LevelTrace)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else if threshold == 1 {
		jww.INFO.Printf("log level set to: DEBUG")
		jww.SetStdoutThreshold(jww.LevelDebug)
		jww.SetLogThreshold(jww.LevelDebug)
		jww.SetFlags(log.LstdFlags | log.Lmicroseconds)
	} else {
		jww.INFO.Printf("log level set to: INFO")
		jww.SetStdoutThreshold(jww.LevelInfo)
		jww.SetLogThreshold(jww.LevelInfo)
	}
}

func init() {
	rootCmd.PersistentFlags().UintP("logLevel", "v", 0,
		"Verbose mode for debugging")
	viper.BindPFlag("logLevel", rootCmd.PersistentFlags().Lookup("logLevel"))

	rootCmd.PersistentFlags().StringP("log", "l", "-",
		"Path to the log output path (- is stdout)")
	viper.BindPFlag("log", rootCmd.PersistentFlags().Lookup("log"))

	rootCmd.PersistentFlags().String("me", "",
		"User ID of the local user")
	viper.BindPFlag("me", rootCmd.PersistentFlags().Lookup("me"))

	rootCmd.PersistentFlags().String("peer", "",
		"User ID of the conversation peer")
	viper.BindPFlag("peer", rootCmd.PersistentFlags().Lookup("peer"))

	rootCmd.PersistentFlags().String("server", "http://localhost:8080",
		"Base URL of the chat server REST API")
	viper.BindPFlag("server", rootCmd.PersistentFlags().Lookup("server"))

	rootCmd.PersistentFlags().String("feed", "ws://localhost:8080/feed",
		"URL of the websocket conversation feed")
	viper.BindPFlag("feed", rootCmd.PersistentFlags().Lookup("feed"))

	rootCmd.PersistentFlags().String("token", "",
		"Bearer token used for the REST API and the feed")
	viper.BindPFlag("token", rootCmd.PersistentFlags().Lookup("token"))

	rootCmd.PersistentFlags().String("db", "",
		"Path to the local message archive; empty disables archiving")
	viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db"))

	rootCmd.PersistentFlags().StringP("state", "s", "",
		"Path to the engine state store; empty keeps state in memory")
	viper.BindPFlag("state", rootCmd.PersistentFlags().Lookup("state"))

	rootCmd.PersistentFlags().StringP("password", "p", "",
		"Password for the engine state store")
	viper.BindPFlag("password", rootCmd.PersistentFlags().Lookup("password"))
}
