package provision

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/itohio/gotmep/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var defaults = store.Settings{
	Hosts: [store.MaxHosts]string{"demo.tmep.cz", "", ""},
	PIN:   "12345678",
}

type captured struct {
	portal   string
	settings []store.Settings
}

func (c *captured) handlers(saveErr error) Handlers {
	return Handlers{
		OnEnter: func(portal string) {
			c.portal = portal
		},
		OnSave: func(s store.Settings) error {
			c.settings = append(c.settings, s)
			return saveErr
		},
	}
}

func TestStatic(t *testing.T) {
	tests := []struct {
		name   string
		static Static
		want   store.Settings
	}{
		{
			name: "defaults",
			want: defaults,
		},
		{
			name:   "hosts and pin",
			static: Static{Hosts: []string{"a.example", "", "c.example"}, PIN: "999"},
			want: store.Settings{
				Hosts: [store.MaxHosts]string{"a.example", "", "c.example"},
				PIN:   "999",
			},
		},
		{
			name:   "extra hosts dropped",
			static: Static{Hosts: []string{"a", "b", "c", "d"}},
			want: store.Settings{
				Hosts: [store.MaxHosts]string{"a", "b", "c"},
				PIN:   defaults.PIN,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c captured
			require.NoError(t, tt.static.Run(context.Background(), "GoTMEP-00000001", defaults, c.handlers(nil)))
			assert.Equal(t, "GoTMEP-00000001", c.portal)
			assert.Equal(t, []store.Settings{tt.want}, c.settings)
		})
	}
}

func TestStatic_SaveError(t *testing.T) {
	var c captured
	saveErr := errors.New("disk full")
	err := (&Static{}).Run(context.Background(), "p", defaults, c.handlers(saveErr))
	assert.ErrorIs(t, err, saveErr)
}

func TestStatic_NoHandlers(t *testing.T) {
	assert.NoError(t, (&Static{}).Run(context.Background(), "p", defaults, Handlers{}))
}

func TestConsole(t *testing.T) {
	in := strings.NewReader("\n-\nthird.example\n\n")
	var out bytes.Buffer
	var c captured

	console := NewConsole(in, &out, time.Second, nil)
	require.NoError(t, console.Run(context.Background(), "GoTMEP-0000ABCD", store.Settings{
		Hosts: [store.MaxHosts]string{"demo.tmep.cz", "second.example", ""},
		PIN:   "4242",
	}, c.handlers(nil)))

	assert.Equal(t, "GoTMEP-0000ABCD", c.portal)
	assert.Equal(t, []store.Settings{{
		Hosts: [store.MaxHosts]string{"demo.tmep.cz", "", "third.example"},
		PIN:   "4242",
	}}, c.settings)
	assert.Contains(t, out.String(), "Configuration portal GoTMEP-0000ABCD")
	assert.Contains(t, out.String(), "Remote host #1 (- to disable) [demo.tmep.cz]: ")
	assert.Contains(t, out.String(), "Configuration PIN [4242]: ")
}

func TestConsole_Timeout(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()
	var c captured

	console := NewConsole(r, io.Discard, 20*time.Millisecond, nil)
	err := console.Run(context.Background(), "p", defaults, c.handlers(nil))
	assert.ErrorIs(t, err, ErrTimeout)
	assert.Empty(t, c.settings)
}

func TestConsole_Cancelled(t *testing.T) {
	r, w := io.Pipe()
	defer w.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewConsole(r, io.Discard, time.Minute, nil).Run(ctx, "p", defaults, Handlers{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestConsole_EOF(t *testing.T) {
	var c captured
	err := NewConsole(strings.NewReader("a\n"), io.Discard, time.Second, nil).Run(context.Background(), "p", defaults, c.handlers(nil))
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Empty(t, c.settings)
}

func TestNewConsole_DefaultTimeout(t *testing.T) {
	c := NewConsole(strings.NewReader(""), io.Discard, 0, nil)
	assert.Equal(t, DefaultTimeout, c.timeout)
}
