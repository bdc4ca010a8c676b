package collab_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keshav-const/inkwell-code/internal/collab"
	"github.com/keshav-const/inkwell-code/internal/domain"
)

func TestResolveColor_Deterministic(t *testing.T) {
	// 相同 ID 在任何时候都应得到相同颜色
	for _, id := range []uint{0, 1, 7, 42, 1000, 4294967295} {
		first := collab.ResolveColor(id)
		second := collab.ResolveColor(id)
		assert.Equal(t, first, second, "ID %d 的颜色应确定", id)
		assert.NotEmpty(t, first)
		assert.Equal(t, byte('#'), first[0], "颜色应为十六进制色值")
	}
}

func TestResolveColor_SpreadsAcrossPalette(t *testing.T) {
	// 连续的 ID 不应全部落在同一个颜色上
	seen := make(map[string]bool)
	for id := uint(1); id <= 50; id++ {
		seen[collab.ResolveColor(id)] = true
	}
	assert.Greater(t, len(seen), 1, "50 个 ID 应覆盖多个颜色")
	assert.LessOrEqual(t, len(seen), 8, "颜色数不应超过调色板大小")
}

func TestPresenceRegistry_UpsertAndSnapshot(t *testing.T) {
	// Arrange
	registry := collab.NewPresenceRegistry()

	// Act
	registry.Upsert(domain.Participant{ID: 1, Name: "alice", Status: domain.StatusOnline})
	registry.Upsert(domain.Participant{ID: 2, Name: "bob", Status: domain.StatusOnline})

	// Assert
	assert.Equal(t, 2, registry.Len())
	snapshot := registry.Snapshot()
	require.Len(t, snapshot, 2)
	// 快照顺序为插入顺序
	assert.Equal(t, uint(1), snapshot[0].ID)
	assert.Equal(t, uint(2), snapshot[1].ID)
}

func TestPresenceRegistry_UpsertReplacesWholeEntry(t *testing.T) {
	// Arrange
	registry := collab.NewPresenceRegistry()
	registry.Upsert(domain.Participant{
		ID: 1, Name: "alice", Status: domain.StatusOnline,
		Cursor: &domain.CursorPosition{Line: 10, Column: 4, FileID: "f1"},
	})

	// Act: 不带光标的快照整体替换旧条目，而不是部分合并
	registry.Upsert(domain.Participant{ID: 1, Name: "alice", Status: domain.StatusAway})

	// Assert
	p, ok := registry.Get(1)
	require.True(t, ok)
	assert.Equal(t, domain.StatusAway, p.Status)
	assert.Nil(t, p.Cursor, "整包替换后旧光标不应残留")
	assert.Equal(t, 1, registry.Len(), "upsert 同一 ID 不应增加条目")
}

func TestPresenceRegistry_RemoveMissingIsNoop(t *testing.T) {
	// Arrange
	registry := collab.NewPresenceRegistry()
	registry.Upsert(domain.Participant{ID: 1, Name: "alice"})
	versionBefore := registry.Version()

	// Act: 移除不存在的参与者
	registry.Remove(99)

	// Assert: 是空操作，版本号不变
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, versionBefore, registry.Version(), "移除不存在的参与者不应递增版本号")

	// 移除存在的参与者则生效
	registry.Remove(1)
	assert.Equal(t, 0, registry.Len())
	assert.Greater(t, registry.Version(), versionBefore)
}

func TestPresenceRegistry_VersionTracksChanges(t *testing.T) {
	registry := collab.NewPresenceRegistry()
	v0 := registry.Version()

	registry.Upsert(domain.Participant{ID: 1})
	v1 := registry.Version()
	assert.Greater(t, v1, v0)

	registry.Upsert(domain.Participant{ID: 1, Status: domain.StatusAway})
	v2 := registry.Version()
	assert.Greater(t, v2, v1, "即使是同一参与者的更新也应递增版本号")
}
