package starter

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"moff.io/walletconnect/internal/config"
)

type recorder struct {
	events *[]string
	name   string
}

func (r recorder) Start(context.Context) {
	*r.events = append(*r.events, "start "+r.name)
}

type configurableRecorder struct {
	recorder
	listen string
}

func (r *configurableRecorder) Apply(cfg *config.Configuration) {
	r.listen = cfg.HTTP.Listen
	*r.events = append(*r.events, "apply "+r.name)
}

func TestStartAppliesConfigInOrder(t *testing.T) {
	var events []string
	cfg := &config.Configuration{HTTP: config.HTTP{Listen: ":9090"}}
	plain := recorder{events: &events, name: "a"}
	withConfig := &configurableRecorder{recorder: recorder{events: &events, name: "b"}}

	Start(context.Background(), cfg, plain, withConfig)
	assert.Equal(t, []string{"start a", "apply b", "start b"}, events)
	assert.Equal(t, ":9090", withConfig.listen)

	events = nil
	Start(context.Background(), nil, withConfig)
	assert.Equal(t, []string{"start b"}, events)
}
