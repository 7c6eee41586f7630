package session_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/replmon/replmon/internal/testrepl"
	"github.com/replmon/replmon/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func startFake(t *testing.T, opts ...session.Option) *session.Session {
	t.Helper()
	opts = append([]session.Option{
		session.WithProfile(testrepl.Profile()),
		session.WithoutSignalBridge(),
	}, opts...)
	sess, loads, err := session.Start(testrepl.Command(t), opts...)
	require.NoError(t, err)
	require.Empty(t, loads)
	t.Cleanup(sess.Stop)
	return sess
}

func TestExecuteStdout(t *testing.T) {
	sess := startFake(t)

	lines, err := sess.Execute("@echo a")
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, lines)
}

func TestExecuteOrdersStdoutBeforeStderr(t *testing.T) {
	sess := startFake(t)

	lines, err := sess.Execute("@both x")
	require.NoError(t, err)
	require.Equal(t, []string{"out x", "err x"}, lines)

	lines, err = sess.Execute("@err only-stderr")
	require.NoError(t, err)
	require.Equal(t, []string{"only-stderr"}, lines)
}

func TestExecuteEmptyOutput(t *testing.T) {
	sess := startFake(t)

	lines, err := sess.Execute("@nodebug")
	require.NoError(t, err)
	require.Empty(t, lines)
}

func TestExecuteStream(t *testing.T) {
	sess := startFake(t)

	var mu sync.Mutex
	var streamed []string
	lines, err := sess.ExecuteStream("@both x", func(line string) {
		mu.Lock()
		defer mu.Unlock()
		streamed = append(streamed, line)
	})
	require.NoError(t, err)
	require.Equal(t, []string{"out x", "err x"}, lines)

	mu.Lock()
	defer mu.Unlock()
	assert.ElementsMatch(t, []string{"out x", "err x"}, streamed)
}

func TestStartupEcho(t *testing.T) {
	var mu sync.Mutex
	var banner []string
	sess := startFake(t, session.WithEcho(func(line string) {
		mu.Lock()
		defer mu.Unlock()
		banner = append(banner, line)
	}))

	mu.Lock()
	assert.Contains(t, banner, "fake repl ready")
	mu.Unlock()

	// The startup sink is disabled after the handshake.
	_, err := sess.Execute("@echo later")
	require.NoError(t, err)
	mu.Lock()
	assert.NotContains(t, banner, "later")
	mu.Unlock()
}

func TestUnexpectedExit(t *testing.T) {
	sess := startFake(t)

	_, err := sess.Execute("@die")
	require.Error(t, err)
	var unexpected *session.UnexpectedExitError
	require.True(t, errors.As(err, &unexpected))
	assert.Equal(t, "@die", unexpected.Command)
	assert.Contains(t, unexpected.Launch, "fakerepl.sh")

	// The session is unusable now; further commands fail fast.
	_, err = sess.Execute("@echo nope")
	require.True(t, errors.As(err, &unexpected))

	// And Stop still returns promptly.
	finished := make(chan struct{})
	go func() {
		sess.Stop()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(10 * time.Second):
		t.Fatal("Stop hung after interpreter death")
	}
}

func TestStartFailure(t *testing.T) {
	_, _, err := session.Start("exec definitely-not-a-real-binary-5311",
		session.WithProfile(testrepl.Profile()),
		session.WithoutSignalBridge(),
	)
	require.Error(t, err)
}

func TestInterruptWithoutCommandIsNoop(t *testing.T) {
	sess := startFake(t)

	sess.Interrupt()

	lines, err := sess.Execute("@echo still-works")
	require.NoError(t, err)
	require.Equal(t, []string{"still-works"}, lines)
}

func TestInterruptInFlightCommand(t *testing.T) {
	sess := startFake(t)

	done := make(chan error, 1)
	go func() {
		_, err := sess.Execute("@sleep 60")
		done <- err
	}()

	time.Sleep(200 * time.Millisecond)
	sess.Interrupt()

	// The pending execute must resolve: either the interpreter survives the
	// signal and finishes the exchange, or it dies and the command fails
	// with an unexpected exit.
	select {
	case err := <-done:
		if err != nil {
			var unexpected *session.UnexpectedExitError
			require.True(t, errors.As(err, &unexpected))
		}
	case <-time.After(10 * time.Second):
		t.Fatal("execute did not resolve after interrupt")
	}
}

func TestExecutesAreSerialized(t *testing.T) {
	sess := startFake(t)

	group := &errgroup.Group{}
	for i := 0; i < 8; i++ {
		i := i
		group.Go(func() error {
			want := fmt.Sprintf("v%d", i)
			lines, err := sess.Execute("@echo " + want)
			if err != nil {
				return err
			}
			if len(lines) != 1 || lines[0] != want {
				return fmt.Errorf("command %q got %v", want, lines)
			}
			return nil
		})
	}
	require.NoError(t, group.Wait())
}

func TestStopIsIdempotent(t *testing.T) {
	sess := startFake(t)

	sess.Stop()

	finished := make(chan struct{})
	go func() {
		sess.Stop()
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(5 * time.Second):
		t.Fatal("second Stop hung")
	}
}

func TestStopEscalatesToKill(t *testing.T) {
	sess, loads, err := session.Start(testrepl.StubbornCommand(t),
		session.WithProfile(testrepl.Profile()),
		session.WithoutSignalBridge(),
		session.WithStopGrace(100*time.Millisecond, 500*time.Millisecond),
	)
	require.NoError(t, err)
	require.Empty(t, loads)

	start := time.Now()
	sess.Stop()
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestShowModules(t *testing.T) {
	sess := startFake(t)

	mods, err := sess.ShowModules()
	require.NoError(t, err)
	require.Len(t, mods, 1)
	assert.Equal(t, "Main", mods[0].Name)
	assert.Equal(t, "src/Main.hs", mods[0].File)
}

func TestReload(t *testing.T) {
	sess := startFake(t)

	loads, err := sess.Reload()
	require.NoError(t, err)
	assert.Empty(t, loads)
}
