package registry

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func testElement(id string, mode Mode, priority uint16) ElementInfo {
	return ElementInfo{
		ElementID:       id,
		Name:            "element " + id,
		Mode:            mode,
		Status:          StatusOnline,
		StorageType:     StorageTypeLocal,
		APIURL:          "http://" + id + ":8080",
		CapacityBytes:   1 << 40,
		UsedBytes:       1 << 30,
		FileCount:       42,
		Priority:        priority,
		CapacityStatus:  CapacityOK,
		RetentionDays:   365,
		LastHealthCheck: time.Now().UTC().Format(time.RFC3339),
	}
}

func TestElementRegistry_PublishAndGet(t *testing.T) {
	t.Parallel()
	mr, client := newTestRedis(t)
	reg := NewElementRegistry(client)
	ctx := context.Background()

	info := testElement("se-a", ModeRW, 10)
	require.NoError(t, reg.Publish(ctx, info, 30*time.Second))

	// Hash fields are flat and inspectable.
	assert.Equal(t, "RW", mr.HGet(ElementKey("se-a"), "mode"))
	assert.Equal(t, "OK", mr.HGet(ElementKey("se-a"), "capacity_status"))
	assert.Equal(t, "10", mr.HGet(ElementKey("se-a"), "priority"))

	// TTL applied so silent elements expire.
	assert.Equal(t, 30*time.Second, mr.TTL(ElementKey("se-a")))

	got, err := reg.Get(ctx, "se-a")
	require.NoError(t, err)
	assert.Equal(t, info, *got)

	// RW mode lands in the RW zset only.
	score, err := client.ZScore(ctx, RWPriorityKey, "se-a").Result()
	require.NoError(t, err)
	assert.Equal(t, float64(10), score)
	_, err = client.ZScore(ctx, EditPriorityKey, "se-a").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestElementRegistry_GetMissing(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	reg := NewElementRegistry(client)

	_, err := reg.Get(context.Background(), "se-ghost")
	require.ErrorIs(t, err, ErrElementNotFound)
}

func TestElementRegistry_ZsetMembershipFollowsMode(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	reg := NewElementRegistry(client)
	ctx := context.Background()

	info := testElement("se-a", ModeEdit, 5)
	require.NoError(t, reg.Publish(ctx, info, time.Minute))

	_, err := client.ZScore(ctx, EditPriorityKey, "se-a").Result()
	require.NoError(t, err, "EDIT element belongs to the edit zset")

	// RW move swaps zsets.
	info.Mode = ModeRW
	require.NoError(t, reg.Publish(ctx, info, time.Minute))
	_, err = client.ZScore(ctx, RWPriorityKey, "se-a").Result()
	require.NoError(t, err)
	_, err = client.ZScore(ctx, EditPriorityKey, "se-a").Result()
	assert.ErrorIs(t, err, redis.Nil)

	// RO drops out of selection entirely.
	info.Mode = ModeRO
	require.NoError(t, reg.Publish(ctx, info, time.Minute))
	_, err = client.ZScore(ctx, RWPriorityKey, "se-a").Result()
	assert.ErrorIs(t, err, redis.Nil)
	_, err = client.ZScore(ctx, EditPriorityKey, "se-a").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestElementRegistry_FullElementLeavesSelection(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	reg := NewElementRegistry(client)
	ctx := context.Background()

	info := testElement("se-a", ModeRW, 10)
	require.NoError(t, reg.Publish(ctx, info, time.Minute))

	info.CapacityStatus = CapacityFull
	require.NoError(t, reg.Publish(ctx, info, time.Minute))

	_, err := client.ZScore(ctx, RWPriorityKey, "se-a").Result()
	assert.ErrorIs(t, err, redis.Nil, "FULL element must not be selectable")

	// The hash itself stays: the element is alive, just not writable.
	got, err := reg.Get(ctx, "se-a")
	require.NoError(t, err)
	assert.Equal(t, CapacityFull, got.CapacityStatus)
}

func TestElementRegistry_PriorityOrder(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	reg := NewElementRegistry(client)
	ctx := context.Background()

	// Same priority resolves lexicographically by element ID.
	require.NoError(t, reg.Publish(ctx, testElement("se-b", ModeRW, 10), time.Minute))
	require.NoError(t, reg.Publish(ctx, testElement("se-a", ModeRW, 10), time.Minute))
	require.NoError(t, reg.Publish(ctx, testElement("se-c", ModeRW, 5), time.Minute))

	order, err := reg.PriorityOrder(ctx, ModeRW)
	require.NoError(t, err)
	assert.Equal(t, []string{"se-c", "se-a", "se-b"}, order)

	_, err = reg.PriorityOrder(ctx, ModeRO)
	require.Error(t, err, "RO has no selection order")
}

func TestElementRegistry_List(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	reg := NewElementRegistry(client)
	ctx := context.Background()

	require.NoError(t, reg.Publish(ctx, testElement("se-a", ModeRW, 10), time.Minute))
	require.NoError(t, reg.Publish(ctx, testElement("se-b", ModeRO, 20), time.Minute))

	elements, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, elements, 2)

	ids := []string{elements[0].ElementID, elements[1].ElementID}
	assert.ElementsMatch(t, []string{"se-a", "se-b"}, ids)
}

func TestElementRegistry_Deregister(t *testing.T) {
	t.Parallel()
	_, client := newTestRedis(t)
	reg := NewElementRegistry(client)
	ctx := context.Background()

	require.NoError(t, reg.Publish(ctx, testElement("se-a", ModeRW, 10), time.Minute))
	require.NoError(t, reg.Deregister(ctx, "se-a"))

	_, err := reg.Get(ctx, "se-a")
	require.ErrorIs(t, err, ErrElementNotFound)
	_, err = client.ZScore(ctx, RWPriorityKey, "se-a").Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestElementInfo_Eligible(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		info ElementInfo
		want bool
	}{
		{"online rw ok", ElementInfo{Mode: ModeRW, Status: StatusOnline, CapacityStatus: CapacityOK}, true},
		{"online edit critical", ElementInfo{Mode: ModeEdit, Status: StatusOnline, CapacityStatus: CapacityCritical}, true},
		{"full", ElementInfo{Mode: ModeRW, Status: StatusOnline, CapacityStatus: CapacityFull}, false},
		{"read only", ElementInfo{Mode: ModeRO, Status: StatusOnline, CapacityStatus: CapacityOK}, false},
		{"archived", ElementInfo{Mode: ModeAR, Status: StatusOnline, CapacityStatus: CapacityOK}, false},
		{"degraded", ElementInfo{Mode: ModeRW, Status: StatusDegraded, CapacityStatus: CapacityOK}, false},
		{"offline", ElementInfo{Mode: ModeRW, Status: StatusOffline, CapacityStatus: CapacityOK}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.info.Eligible())
		})
	}
}
