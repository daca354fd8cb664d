// The CollabCode agent: a headless terminal participant. It joins a room,
// mirrors the document through the reconciler, and appends whatever is
// typed on stdin to the shared document. Useful for testing a server,
// scripting edits, and keeping a live mirror of a room.
//
// Commands: /lang <tag>, /resync, /push, /print, /users, /quit; any
// other line is appended to the document.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Nandu0007/collab-code-editor/client"
	"github.com/Nandu0007/collab-code-editor/protocol"
	"github.com/Nandu0007/collab-code-editor/reconciler"
)

var (
	addrFlag = flag.String("addr", "", "server address (host:port); empty browses the LAN, then falls back to localhost:3000")
	roomFlag = flag.String("room", "default-room", "room to join")
	nameFlag = flag.String("name", "agent", "display name")
)

// agent ties one buffer and reconciler to whichever connection is
// currently alive.
type agent struct {
	buf *buffer
	rec *reconciler.Reconciler

	mu    sync.Mutex
	conn  *client.Client
	users []protocol.User
}

func (a *agent) send(cc protocol.CodeChange) error {
	a.mu.Lock()
	c := a.conn
	a.mu.Unlock()
	if c == nil {
		return errors.New("not connected")
	}
	return c.SendChange(cc)
}

func (a *agent) setConn(c *client.Client) {
	a.mu.Lock()
	a.conn = c
	a.mu.Unlock()
}

func main() {
	flag.Parse()
	log.SetFlags(log.Ltime)

	addr := *addrFlag
	if addr == "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		found, err := client.Discover(ctx)
		cancel()
		if err != nil {
			log.Printf("no server found on the LAN (%v), trying localhost:3000", err)
			addr = "localhost:3000"
		} else {
			log.Printf("discovered server at %s", found)
			addr = found
		}
	}

	a := &agent{buf: &buffer{}}
	a.rec = reconciler.New(a.buf, *roomFlag, a.send, reconciler.Options{
		Debounce:       150 * time.Millisecond,
		SuppressWindow: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go a.runSessions(ctx, addr)
	a.readCommands(cancel)
}

// runSessions keeps one connection alive, rejoining the room after every
// disconnect. Dial backs off on its own; each rejoin brings a fresh
// snapshot that re-enables the buffer.
func (a *agent) runSessions(ctx context.Context, addr string) {
	for ctx.Err() == nil {
		disconnected := make(chan struct{})
		handlers := client.Handlers{
			OnConnected: func(id string) {
				a.rec.HandleConnected(id)
				log.Printf("connected as %s", id)
			},
			OnDocumentState: func(ds protocol.DocumentState) {
				a.rec.HandleDocumentState(ds)
				log.Printf("document loaded: version %d, %d bytes", ds.Version, len(ds.Content))
			},
			OnCodeUpdate: func(cc protocol.CodeChange) {
				if err := a.rec.HandleCodeUpdate(cc); err != nil {
					log.Printf("remote %s diverged, resync requested: %v", cc.Type, err)
				}
			},
			OnUserJoined: func(u protocol.User) {
				log.Printf("%s joined", u.Name)
			},
			OnUserLeft: func(id string) {
				log.Printf("%s left", id)
			},
			OnUserList: func(list []protocol.User) {
				a.setUsers(list)
			},
			OnDisconnect: func(err error) {
				a.rec.HandleDisconnect()
				log.Printf("disconnected: %v", err)
				close(disconnected)
			},
		}

		c, err := client.Dial(ctx, addr, handlers)
		if err != nil {
			log.Printf("giving up dialing: %v", err)
			return
		}
		a.setConn(c)
		if err := c.Join(*roomFlag, *nameFlag); err != nil {
			log.Printf("join failed: %v", err)
			c.Close()
		}

		select {
		case <-disconnected:
			a.setConn(nil)
		case <-ctx.Done():
			c.Close()
			return
		}
	}
}

func (a *agent) setUsers(list []protocol.User) {
	a.mu.Lock()
	a.users = list
	a.mu.Unlock()
}

func (a *agent) readCommands(cancel context.CancelFunc) {
	sc := bufio.NewScanner(os.Stdin)
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "/quit":
			a.rec.Flush()
			cancel()
			return
		case line == "/print":
			fmt.Println(a.buf.Content())
		case line == "/users":
			a.mu.Lock()
			for _, u := range a.users {
				fmt.Printf("  %s (%s)\n", u.Name, u.ID)
			}
			a.mu.Unlock()
		case line == "/resync":
			if err := a.rec.RequestFullContent(); err != nil {
				log.Printf("resync request failed: %v", err)
			}
		case line == "/push":
			if err := a.rec.PushFullContent(); err != nil {
				log.Printf("push failed: %v", err)
			}
		case strings.HasPrefix(line, "/lang "):
			lang := strings.TrimSpace(strings.TrimPrefix(line, "/lang "))
			if !slices.Contains(protocol.Languages, lang) {
				log.Printf("unknown language %q (choose one of %s)", lang, strings.Join(protocol.Languages, ", "))
				continue
			}
			if err := a.rec.ChangeLanguage(lang); err != nil {
				log.Printf("language change failed: %v", err)
			}
		default:
			if !a.buf.Enabled() {
				log.Println("editor disabled, edit dropped")
				continue
			}
			content := a.buf.Append(line + "\n")
			if err := a.rec.HandleLocalChange(content); err != nil {
				log.Printf("local change not sent: %v", err)
			}
		}
	}
	cancel()
}
