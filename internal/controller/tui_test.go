package controller

import (
	"bytes"
	"fmt"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"
)

func TestIsTTYRejectsBuffer(t *testing.T) {
	require.False(t, IsTTY(&bytes.Buffer{}))
}

func TestReportLinesContent(t *testing.T) {
	lines := reportLines(fixtureReport())
	joined := ""

	for _, line := range lines {
		joined += line + "\n"
	}

	require.Contains(t, joined, "Run run-7")
	require.Contains(t, joined, "fn_1")
	require.Contains(t, joined, "behavior mismatch on validation")
	require.Contains(t, joined, "a 5 -> 3 node(s)")
	require.Contains(t, joined, "+after")
	require.Contains(t, joined, "Clone group: a, b")
	require.Contains(t, joined, "Corpus: 10 -> 8 node(s) (20.0% smaller)")
	require.Contains(t, joined, "Total savings: 6 node(s)")
}

func pagerFixture(lineCount, height int) pagerModel {
	lines := make([]string, lineCount)
	for i := range lines {
		lines[i] = fmt.Sprintf("line %d", i)
	}

	model := newPagerModel(lines)
	model.height = height

	return model
}

func keyMsg(s string) tea.KeyMsg {
	return tea.KeyMsg(tea.Key{Type: tea.KeyRunes, Runes: []rune(s)})
}

func TestPagerNavigationClamps(t *testing.T) {
	model := pagerFixture(50, 13) // 10 visible lines

	require.Equal(t, 10, model.linesPerPage())
	require.Equal(t, 40, model.maxOffset())
	require.True(t, model.needsPagination())

	updated, _ := model.Update(keyMsg("j"))
	model = updated.(pagerModel)
	require.Equal(t, 1, model.offset)

	updated, _ = model.Update(keyMsg("d"))
	model = updated.(pagerModel)
	require.Equal(t, 11, model.offset)

	updated, _ = model.Update(keyMsg("G"))
	model = updated.(pagerModel)
	require.Equal(t, 40, model.offset)

	// Past the end stays at the end.
	updated, _ = model.Update(keyMsg("j"))
	model = updated.(pagerModel)
	require.Equal(t, 40, model.offset)

	updated, _ = model.Update(keyMsg("g"))
	model = updated.(pagerModel)
	require.Equal(t, 0, model.offset)

	updated, _ = model.Update(keyMsg("k"))
	model = updated.(pagerModel)
	require.Equal(t, 0, model.offset)
}

func TestPagerQuitKeys(t *testing.T) {
	model := pagerFixture(50, 13)

	updated, cmd := model.Update(keyMsg("q"))
	require.True(t, updated.(pagerModel).quitting)
	require.NotNil(t, cmd)

	updated, cmd = model.Update(tea.KeyMsg(tea.Key{Type: tea.KeyEsc}))
	require.True(t, updated.(pagerModel).quitting)
	require.NotNil(t, cmd)
}

func TestPagerWindowResize(t *testing.T) {
	model := pagerFixture(50, 0)
	require.False(t, model.needsPagination())

	updated, _ := model.Update(tea.WindowSizeMsg{Width: 80, Height: 23})
	model = updated.(pagerModel)
	require.Equal(t, 20, model.linesPerPage())
	require.True(t, model.needsPagination())
}

func TestPagerViewFooter(t *testing.T) {
	model := pagerFixture(50, 13)

	view := model.View()
	require.Contains(t, view, "line 0")
	require.Contains(t, view, "line 9")
	require.NotContains(t, view, "line 10\n")
	require.Contains(t, view, "Lines 1-10 of 50")

	// Without a known height everything prints at once.
	flat := pagerFixture(5, 0).View()
	require.Contains(t, flat, "line 4")
	require.NotContains(t, flat, "Lines")
}
