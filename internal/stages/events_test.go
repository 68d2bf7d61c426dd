package stages

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/fyrsmithlabs/qaflow/internal/events"
	"github.com/fyrsmithlabs/qaflow/internal/failure"
	"github.com/fyrsmithlabs/qaflow/internal/pipeline"
	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func startNATS(t *testing.T) *natsserver.Server {
	t.Helper()
	server, err := natsserver.NewServer(&natsserver.Options{
		Host:   "127.0.0.1",
		Port:   -1,
		NoLog:  true,
		NoSigs: true,
	})
	require.NoError(t, err)

	go server.Start()
	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}
	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})
	return server
}

func TestPipeline_ProvisionFailurePublishesEvents(t *testing.T) {
	server := startNATS(t)

	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	sub, err := nc.SubscribeSync("qaflow.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	pub, err := events.Connect(server.ClientURL(), "qaflow", nil)
	require.NoError(t, err)

	f := newFixture(t)
	f.cloner.On("Clone", mock.Anything, mock.Anything, mock.Anything).Return(nil)
	f.provisioner.On("Provision", mock.Anything, "shop", "shop-app").
		Return(failure.New(failure.KindBuild, "docker build", errors.New("exit status 1")))

	ctrl := pipeline.NewController(nil, pipeline.WithObserver(pub))
	for _, s := range All(f.deps) {
		ctrl.Register(s)
	}

	state := pipeline.NewRunState("https://github.com/acme/shop.git", "shop", "shop-app")
	final, err := ctrl.Run(context.Background(), state)
	require.NoError(t, err)
	require.NoError(t, pub.Close())
	assert.Equal(t, pipeline.OutcomeError, final.Outcome)

	var subjects []string
	var stageEvents []events.StageEvent
	var terminal events.TerminalEvent
	for i := 0; i < 3; i++ {
		msg, err := sub.NextMsg(2 * time.Second)
		require.NoError(t, err)
		subjects = append(subjects, msg.Subject)
		if msg.Subject == pub.TerminalSubject(state.RunID) {
			require.NoError(t, json.Unmarshal(msg.Data, &terminal))
			continue
		}
		var ev events.StageEvent
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		stageEvents = append(stageEvents, ev)
	}

	assert.Equal(t, []string{
		pub.StageSubject(state.RunID, pipeline.StageClone),
		pub.StageSubject(state.RunID, pipeline.StageProvision),
		pub.TerminalSubject(state.RunID),
	}, subjects)

	require.Len(t, stageEvents, 2)
	assert.True(t, stageEvents[0].Success)
	assert.False(t, stageEvents[1].Success)
	assert.Equal(t, "Docker build/run failed: docker build: exit status 1", stageEvents[1].Error)

	assert.Equal(t, state.RunID, terminal.RunID)
	assert.Equal(t, pipeline.OutcomeError, terminal.Outcome)
	assert.Equal(t, "Docker build/run failed: docker build: exit status 1", terminal.OverallError)

	_, err = sub.NextMsg(200 * time.Millisecond)
	assert.ErrorIs(t, err, nats.ErrTimeout)
	f.assertExpectations(t)
}
