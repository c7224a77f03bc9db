package client

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"imgload/pkg/types"
)

// ErrStopWatch may be returned by a Watch callback to end the stream cleanly.
var ErrStopWatch = errors.New("client: stop watch")

// Watch subscribes to the state stream of one image and calls fn for every
// event, the current state first. It returns nil when fn returns
// ErrStopWatch and ctx's error when ctx ends. A stream closed by the server
// is an error.
func (c *Client) Watch(ctx context.Context, id string, fn func(types.ImageState) error) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/images/"+url.PathEscape(id)+"/events", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	// The stream outlives any request timeout.
	hc := *c.hc
	hc.Timeout = 0
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)
	var data strings.Builder
	for sc.Scan() {
		line := sc.Text()
		switch {
		case line == "":
			if data.Len() == 0 {
				continue
			}
			var st types.ImageState
			if err := json.Unmarshal([]byte(data.String()), &st); err != nil {
				return fmt.Errorf("decode event: %w", err)
			}
			data.Reset()
			if err := fn(st); err != nil {
				if errors.Is(err, ErrStopWatch) {
					return nil
				}
				return err
			}
		case strings.HasPrefix(line, ":"):
			// comment / keep-alive
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := sc.Err(); err != nil {
		return err
	}
	return fmt.Errorf("event stream for %s closed by server", id)
}

// WaitForState watches id until it reaches one of the wanted states.
func (c *Client) WaitForState(ctx context.Context, id string, want ...string) (types.ImageState, error) {
	var last types.ImageState
	err := c.Watch(ctx, id, func(st types.ImageState) error {
		last = st
		for _, w := range want {
			if st.State == w {
				return ErrStopWatch
			}
		}
		return nil
	})
	return last, err
}
