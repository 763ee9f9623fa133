package catalog

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/giantswarm/suidriver/internal/api"
	"github.com/giantswarm/suidriver/internal/dependency"
)

func desc(id, label string, deps ...string) *api.ProjectDescriptor {
	return &api.ProjectDescriptor{
		ID:            id,
		Label:         label,
		LocalPath:     "/projects/" + label + "-soapui-project.xml",
		Parameters:    api.NewParameterSet("maxFeatures", "10"),
		DependencyIDs: deps,
	}
}

func TestCatalog_PublishGetList(t *testing.T) {
	c := New()
	require.NoError(t, c.Publish(desc("2", "WMS")))
	require.NoError(t, c.Publish(desc("1", "WFS")))
	require.NoError(t, c.Publish(desc("3", "WFS")))

	var labels []string
	for _, d := range c.List() {
		labels = append(labels, d.Label+"/"+d.ID)
	}
	assert.Equal(t, []string{"WFS/1", "WFS/3", "WMS/2"}, labels)
	assert.Equal(t, 3, c.Len())

	d, err := c.Get("2")
	require.NoError(t, err)
	assert.Equal(t, "WMS", d.Label)

	_, err = c.Get("missing")
	assert.True(t, api.IsNotFound(err))

	assert.Error(t, c.Publish(&api.ProjectDescriptor{}))
	assert.Error(t, c.Publish(nil))
}

func TestCatalog_ReturnsCopies(t *testing.T) {
	c := New()
	original := desc("1", "WFS")
	require.NoError(t, c.Publish(original))

	original.Label = "changed"
	got, err := c.Get("1")
	require.NoError(t, err)
	assert.Equal(t, "WFS", got.Label)

	got.Parameters.Set("maxFeatures", "99")
	again, _ := c.Get("1")
	v, _ := again.Parameters.Get("maxFeatures")
	assert.Equal(t, "10", v)
}

func TestCatalog_Notifications(t *testing.T) {
	c := New()
	var events []string
	unsubscribe := c.Subscribe(func(ev Event) {
		events = append(events, fmt.Sprintf("%s %s %s", ev.Type, ev.Descriptor.ID, ev.Descriptor.Label))
	})

	require.NoError(t, c.Publish(desc("1", "WFS")))
	require.NoError(t, c.Publish(desc("1", "WFS 2.0")))
	assert.True(t, c.Retract("1"))
	assert.False(t, c.Retract("1"))

	unsubscribe()
	require.NoError(t, c.Publish(desc("2", "WMS")))

	assert.Equal(t, []string{
		"added 1 WFS",
		"removed 1 WFS",
		"added 1 WFS 2.0",
		"removed 1 WFS 2.0",
	}, events)
}

func TestCatalog_LookupSkipsUnknown(t *testing.T) {
	c := New()
	require.NoError(t, c.Publish(desc("1", "WFS")))
	require.NoError(t, c.Publish(desc("2", "WMS")))

	got := c.Lookup([]string{"2", "x", "1"})
	require.Len(t, got, 2)
	assert.Equal(t, "2", got[0].ID)
	assert.Equal(t, "1", got[1].ID)
}

func TestCatalog_Order(t *testing.T) {
	c := New()
	require.NoError(t, c.Publish(desc("base", "Base")))
	require.NoError(t, c.Publish(desc("common", "Common", "base")))
	require.NoError(t, c.Publish(desc("wfs", "WFS", "common", "base")))
	require.NoError(t, c.Publish(desc("broken", "Broken", "gone")))

	ordered, err := c.Order([]string{"wfs"})
	require.NoError(t, err)
	var ids []string
	for _, d := range ordered {
		ids = append(ids, d.ID)
	}
	assert.Equal(t, []string{"base", "common", "wfs"}, ids)

	_, err = c.Order([]string{"broken"})
	var missing *dependency.MissingError
	assert.ErrorAs(t, err, &missing)

	_, err = c.Order([]string{"unknown"})
	assert.True(t, api.IsNotFound(err))
}

func TestCatalog_OrderDetectsCycles(t *testing.T) {
	c := New()
	require.NoError(t, c.Publish(desc("a", "A", "b")))
	require.NoError(t, c.Publish(desc("b", "B", "a")))

	_, err := c.Order([]string{"a"})
	var cycle *dependency.CycleError
	assert.ErrorAs(t, err, &cycle)
}

func TestCatalog_ConcurrentReadsAndWrites(t *testing.T) {
	c := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := range 200 {
			id := fmt.Sprintf("%d", i%10)
			if i%3 == 0 {
				c.Retract(id)
				continue
			}
			assert.NoError(t, c.Publish(desc(id, "Suite "+id)))
		}
	}()

	for range 4 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 200 {
				list := c.List()
				for _, d := range list {
					assert.NotEmpty(t, d.ID)
				}
				_, _ = c.Get("1")
			}
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, c.Len(), 10)
}
