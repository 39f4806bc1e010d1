package session

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"prproxy/pkg/model"
)

func TestManagerPutGetDelete(t *testing.T) {
	m := NewManager(nil)
	page := model.PageID("https://example.com/watch/1")

	assert.Nil(t, m.Put(&Session{Page: page, ID: "a"}))
	s, ok := m.Get(page)
	require.True(t, ok)
	assert.Equal(t, "a", s.ID)

	replaced := m.Put(&Session{Page: page, ID: "b"})
	require.NotNil(t, replaced)
	assert.Equal(t, "a", replaced.ID)

	// 旧会话ID不能删除新记录
	assert.False(t, m.Delete(page, "a"))
	assert.True(t, m.Delete(page, "b"))
	_, ok = m.Get(page)
	assert.False(t, ok)
}

func TestManagerClear(t *testing.T) {
	m := NewManager(nil)
	for i := 0; i < 3; i++ {
		m.Put(&Session{Page: model.PageID(fmt.Sprintf("p%d", i)), ID: "x"})
	}
	assert.Len(t, m.List(), 3)
	assert.Equal(t, 3, m.Clear())
	assert.Empty(t, m.List())
}

func TestManagerConcurrentPages(t *testing.T) {
	m := NewManager(nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			page := model.PageID(fmt.Sprintf("page-%d", i))
			m.Put(&Session{Page: page, ID: fmt.Sprint(i)})
			m.Get(page)
		}(i)
	}
	wg.Wait()
	assert.Len(t, m.List(), 50)
}
