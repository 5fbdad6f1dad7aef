package editor

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/kwv/floorplan/spatial"
)

// PatchPublisher announces confirmed saves to other editors. Each publish
// carries the full metadata, status and space list of the saved plan, the
// ids of spaces removed since the previous publish, and this editor's
// origin id so its own reconciler can drop the echo.
type PatchPublisher struct {
	client mqtt.Client
	prefix string
	origin string
	qos    byte
	retain bool
	known  map[string][]string
	mu     sync.RWMutex
}

// NewPatchPublisher creates a publisher. If client is nil, publishing is
// disabled.
func NewPatchPublisher(client mqtt.Client, prefix, origin string) *PatchPublisher {
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return &PatchPublisher{
		client: client,
		prefix: prefix,
		origin: origin,
		qos:    1,
		retain: false,
		known:  make(map[string][]string),
	}
}

// Origin returns the id stamped on published patches.
func (p *PatchPublisher) Origin() string {
	return p.origin
}

// Track records the space ids of plan as already known to subscribers,
// so the first publish can report deletions.
func (p *PatchPublisher) Track(plan *spatial.FloorPlan) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.known[plan.ID] = spaceIDs(plan)
}

// PublishSaved publishes a saved plan as a patch.
func (p *PatchPublisher) PublishSaved(plan *spatial.FloorPlan) error {
	if p.client == nil || !p.client.IsConnected() {
		return fmt.Errorf("MQTT client not connected")
	}

	patch, err := p.buildPatch(plan)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("marshaling patch: %w", err)
	}

	topic := PatchTopic(p.prefix, plan.ID)
	token := p.client.Publish(topic, p.qos, p.retain, payload)
	if token.WaitTimeout(2*time.Second) && token.Error() != nil {
		return fmt.Errorf("publishing to %s: %w", topic, token.Error())
	}

	p.mu.Lock()
	p.known[plan.ID] = spaceIDs(plan)
	p.mu.Unlock()

	log.Printf("[MQTT] Published floor plan %s version %d (%d spaces, %d removed)",
		plan.ID, plan.Metadata.Version, len(patch.Spaces), len(patch.DeletedSpaceIDs))
	return nil
}

func (p *PatchPublisher) buildPatch(plan *spatial.FloorPlan) (Patch, error) {
	raw, err := json.Marshal(plan.Metadata)
	if err != nil {
		return Patch{}, fmt.Errorf("marshaling metadata: %w", err)
	}
	var md map[string]json.RawMessage
	if err := json.Unmarshal(raw, &md); err != nil {
		return Patch{}, fmt.Errorf("marshaling metadata: %w", err)
	}

	status := plan.Status
	patch := Patch{
		ID:       plan.ID,
		Origin:   p.origin,
		Metadata: md,
		Spaces:   plan.Spaces,
		Status:   &status,
	}

	p.mu.RLock()
	prev := p.known[plan.ID]
	p.mu.RUnlock()
	for _, id := range prev {
		if plan.SpaceByID(id) < 0 {
			patch.DeletedSpaceIDs = append(patch.DeletedSpaceIDs, id)
		}
	}
	return patch, nil
}

// SetQoS sets the Quality of Service level for publishing (0, 1, or 2).
func (p *PatchPublisher) SetQoS(qos byte) {
	if qos <= 2 {
		p.qos = qos
	}
}

// SetRetain sets whether the broker keeps the latest patch.
func (p *PatchPublisher) SetRetain(retain bool) {
	p.retain = retain
}

func spaceIDs(plan *spatial.FloorPlan) []string {
	ids := make([]string, len(plan.Spaces))
	for i, sp := range plan.Spaces {
		ids[i] = sp.ID
	}
	return ids
}
