// Command scenario drives a live relay through the S1, S2, S3, S5 and S6
// end-to-end scenarios over a real WebSocket connection, adapted from the
// teacher's cmd/tester load-test client but rewritten as a sequential
// correctness check rather than a concurrency stress run.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/coder/websocket"
)

var wsURL = flag.String("url", "ws://localhost:8080/ws", "relay WebSocket URL")

type scenarioClient struct {
	name string
	conn *websocket.Conn
	ctx  context.Context
}

func dialClient(ctx context.Context, name string) (*scenarioClient, error) {
	c, _, err := websocket.Dial(ctx, *wsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%s: dial: %w", name, err)
	}
	return &scenarioClient{name: name, conn: c, ctx: ctx}, nil
}

func (c *scenarioClient) send(payload string) error {
	return c.conn.Write(c.ctx, websocket.MessageText, []byte(payload))
}

func (c *scenarioClient) sendJSON(msgs ...any) error {
	data, err := json.Marshal(msgs)
	if err != nil {
		return err
	}
	return c.conn.Write(c.ctx, websocket.MessageText, data)
}

// recv reads one frame and returns its messages as an array of
// generic maps, the way a browser client's JSON.parse would.
func (c *scenarioClient) recv() ([]map[string]any, error) {
	_, data, err := c.conn.Read(c.ctx)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("%s: non-array frame: %w", c.name, err)
	}
	return out, nil
}

// recvUntil reads frames until one contains a message with the given
// "m" verb, returning that message. Gives up after maxFrames.
func (c *scenarioClient) recvUntil(verb string, maxFrames int) (map[string]any, error) {
	for i := 0; i < maxFrames; i++ {
		msgs, err := c.recv()
		if err != nil {
			return nil, err
		}
		for _, m := range msgs {
			if m["m"] == verb {
				return m, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: did not see verb %q within %d frames", c.name, verb, maxFrames)
}

func (c *scenarioClient) close() {
	c.conn.Close(websocket.StatusNormalClosure, "scenario done")
}

func main() {
	flag.Parse()

	scenarios := []struct {
		name string
		run  func(context.Context) error
	}{
		{"S1 crown handoff", scenarioCrownHandoff},
		{"S2 ban redirect", scenarioBanRedirect},
		{"S3 quota throttle", scenarioQuotaThrottle},
		{"S5 empty-room GC", scenarioEmptyRoomGC},
		{"S6 cursor throttle", scenarioCursorThrottle},
	}

	failures := 0
	for _, s := range scenarios {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		err := s.run(ctx)
		cancel()
		if err != nil {
			failures++
			log.Printf("FAIL %s: %v", s.name, err)
		} else {
			log.Printf("PASS %s", s.name)
		}
	}

	if failures > 0 {
		fmt.Fprintf(os.Stderr, "%d/%d scenarios failed\n", failures, len(scenarios))
		os.Exit(1)
	}
	log.Println("all scenarios passed")
}

func scenarioCrownHandoff(ctx context.Context) error {
	a, err := dialClient(ctx, "A")
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.send(`[{"m":"hi"}]`); err != nil {
		return err
	}
	if _, err := a.recvUntil("hi", 3); err != nil {
		return err
	}

	if err := a.send(`[{"m":"ch","_id":"room1"}]`); err != nil {
		return err
	}
	ch, err := a.recvUntil("ch", 3)
	if err != nil {
		return err
	}
	crown, _ := ch["crown"].(map[string]any)
	if crown == nil || crown["participantId"] == nil {
		return fmt.Errorf("expected A to hold the crown on first join, got %v", ch)
	}

	if err := a.send(`[{"m":"chown"}]`); err != nil {
		return err
	}
	ch, err = a.recvUntil("ch", 3)
	if err != nil {
		return err
	}
	crown, _ = ch["crown"].(map[string]any)
	if crown == nil || crown["participantId"] != nil {
		return fmt.Errorf("expected dropped crown after chown, got %v", ch)
	}
	if crown["userId"] == nil {
		return fmt.Errorf("expected dropped crown to retain claimable userId, got %v", ch)
	}

	b, err := dialClient(ctx, "B")
	if err != nil {
		return err
	}
	defer b.close()
	if err := b.send(`[{"m":"hi"},{"m":"ch","_id":"room1"}]`); err != nil {
		return err
	}
	ch, err = b.recvUntil("ch", 4)
	if err != nil {
		return err
	}
	crown, _ = ch["crown"].(map[string]any)
	if crown == nil || crown["participantId"] == nil {
		return fmt.Errorf("expected B to claim the dropped crown on join, got %v", ch)
	}
	return nil
}

func scenarioBanRedirect(ctx context.Context) error {
	a, err := dialClient(ctx, "A")
	if err != nil {
		return err
	}
	defer a.close()
	b, err := dialClient(ctx, "B")
	if err != nil {
		return err
	}
	defer b.close()

	if err := a.send(`[{"m":"hi"},{"m":"ch","_id":"room2"}]`); err != nil {
		return err
	}
	if _, err := a.recvUntil("ch", 4); err != nil {
		return err
	}

	if err := b.send(`[{"m":"hi"},{"m":"ch","_id":"room2"}]`); err != nil {
		return err
	}
	bHi, err := b.recvUntil("hi", 4)
	if err != nil {
		return err
	}
	bID, _ := bHi["participant"].(map[string]any)
	if bID == nil {
		return fmt.Errorf("could not read B's participant id from hi reply")
	}
	if _, err := b.recvUntil("ch", 4); err != nil {
		return err
	}
	if _, err := a.recvUntil("p", 4); err != nil {
		return err
	}

	bParticipantID, _ := bID["id"].(string)
	if bParticipantID == "" {
		return fmt.Errorf("B participant id empty")
	}
	if err := a.send(fmt.Sprintf(`[{"m":"kickban","_id":%q,"ms":60000}]`, bParticipantID)); err != nil {
		return err
	}

	redirect, err := b.recvUntil("ch", 5)
	if err != nil {
		return err
	}
	if redirect["_id"] != "test/awkward" {
		return fmt.Errorf("expected B redirected to test/awkward, got %v", redirect)
	}

	if err := b.send(`[{"m":"ch","_id":"room2"}]`); err != nil {
		return err
	}
	second, err := b.recvUntil("ch", 4)
	if err != nil {
		return err
	}
	if second["_id"] != "test/awkward" {
		return fmt.Errorf("expected B's rejoin attempt redirected again, got %v", second)
	}
	return nil
}

func scenarioQuotaThrottle(ctx context.Context) error {
	a, err := dialClient(ctx, "A")
	if err != nil {
		return err
	}
	defer a.close()

	if err := a.send(`[{"m":"hi"},{"m":"ch","_id":"room3"}]`); err != nil {
		return err
	}
	if _, err := a.recvUntil("ch", 4); err != nil {
		return err
	}

	notes := make([]map[string]any, 0, 25)
	for i := 0; i < 25; i++ {
		notes = append(notes, map[string]any{"n": "a4", "v": 1.0})
	}
	batch := map[string]any{"m": "n", "n": notes}

	for i := 0; i < 10; i++ {
		if err := a.sendJSON(batch); err != nil {
			return err
		}
	}
	// Accepted batches are broadcast to the room excluding A, so A only
	// sees its pending chat history and the throttle notifications.
	if _, err := a.recvUntil("notification", 5); err != nil {
		return fmt.Errorf("expected at least one throttle notification across 10 batches of 25 notes")
	}
	return nil
}

func scenarioEmptyRoomGC(ctx context.Context) error {
	a, err := dialClient(ctx, "A")
	if err != nil {
		return err
	}

	if err := a.send(`[{"m":"hi"},{"m":"ch","_id":"rehearsal"}]`); err != nil {
		return err
	}
	if _, err := a.recvUntil("ch", 4); err != nil {
		return err
	}
	a.close()
	time.Sleep(200 * time.Millisecond)

	watcher, err := dialClient(ctx, "watcher")
	if err != nil {
		return err
	}
	defer watcher.close()
	if err := watcher.send(`[{"m":"hi"},{"m":"+ls"}]`); err != nil {
		return err
	}
	snapshot, err := watcher.recvUntil("ls", 3)
	if err != nil {
		return err
	}
	entries, _ := snapshot["c"].([]any)
	for _, e := range entries {
		entry, _ := e.(map[string]any)
		if entry["_id"] == "rehearsal" {
			return fmt.Errorf("expected rehearsal garbage collected after A left, still present: %v", entries)
		}
	}
	return nil
}

func scenarioCursorThrottle(ctx context.Context) error {
	a, err := dialClient(ctx, "A")
	if err != nil {
		return err
	}
	defer a.close()
	b, err := dialClient(ctx, "B")
	if err != nil {
		return err
	}
	defer b.close()

	if err := a.send(`[{"m":"hi"},{"m":"ch","_id":"room4"}]`); err != nil {
		return err
	}
	if _, err := a.recvUntil("ch", 4); err != nil {
		return err
	}
	if err := b.send(`[{"m":"hi"},{"m":"ch","_id":"room4"}]`); err != nil {
		return err
	}
	if _, err := b.recvUntil("ch", 4); err != nil {
		return err
	}
	if _, err := a.recvUntil("p", 4); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		for i := 0; i < 50; i++ {
			x := float64(i % 100)
			if err := a.sendJSON(map[string]any{"m": "m", "x": x, "y": x}); err != nil {
				done <- err
				return
			}
			time.Sleep(2 * time.Millisecond)
		}
		done <- nil
	}()

	moveFrames := 0
	readCtx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	bWithDeadline := &scenarioClient{name: b.name, conn: b.conn, ctx: readCtx}
	for {
		msgs, err := bWithDeadline.recv()
		if err != nil {
			break
		}
		for _, m := range msgs {
			if m["m"] == "m" {
				moveFrames++
			}
		}
	}
	<-done

	if moveFrames > 3 {
		return fmt.Errorf("expected at most ~2-3 move broadcasts from 50 sends throttled at 50ms, got %d", moveFrames)
	}
	return nil
}
