package rename

import (
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

func ptr[T any](v T) *T { return &v }

func sampleMeta() domain.MovieMetadata {
	return domain.MovieMetadata{
		Title:     "ABC-123 Sample",
		Number:    ptr("ABC-123"),
		Year:      ptr(2024),
		Premiered: ptr("2024-03-01"),
		Actors:    []domain.Actor{{Name: "Jane"}, {Name: "Amy"}},
		Genres:    []string{},
		Tags:      []string{},
	}
}

func TestFormat_Placeholders(t *testing.T) {
	meta := sampleMeta()
	assert.Equal(t, "[Jane][2024-03-01]ABC-123", Format(DefaultFormat, meta, 1))
	assert.Equal(t, "ABC-123_2024_2", Format("{id}_{year}_{idx}", meta, 2))
	assert.Equal(t, "ABC-123 Sample", Format("{title}{vr}", meta, 1))

	meta.Genres = []string{"vr作品"}
	assert.Equal(t, "ABC-123_180_LR", Format("{id}_{vr}", meta, 1))
}

func TestFormat_DateFallsBackToReleaseDate(t *testing.T) {
	meta := sampleMeta()
	meta.Premiered = nil
	meta.ReleaseDate = ptr("2023-12-31")
	assert.Equal(t, "2023-12-31", Format("{date}", meta, 1))

	meta.ReleaseDate = nil
	meta.Year = nil
	meta.Actors = []domain.Actor{}
	assert.Equal(t, "[][]ABC-123", Format(DefaultFormat, meta, 1))
}

func TestFormat_SinglePassSubstitution(t *testing.T) {
	meta := sampleMeta()
	meta.Title = "{id}"
	assert.Equal(t, "{id}", Format("{title}", meta, 1))
}

func TestSanitize(t *testing.T) {
	assert.Equal(t, "a_b_c_d_e_f_g_h_i_j", Sanitize(`a<b>c:d"e/f\g|h?i*j`))
	assert.Equal(t, "x_y", Sanitize("x\x01y"))
	assert.Equal(t, "name", Sanitize("  ..name.. "))
	assert.Equal(t, "_", Sanitize(" . "))
	assert.Equal(t, "_", Sanitize(""))
}

func TestTruncateBytes_NeverSplitsRune(t *testing.T) {
	s := "a" + strings.Repeat("漢", 100)
	limit := MaxBaseBytes(".mp4")
	require.Equal(t, 243, limit)

	got := TruncateBytes(s, limit)
	assert.True(t, utf8.ValidString(got))
	assert.LessOrEqual(t, len(got), limit)
	assert.Equal(t, 241, len(got))

	assert.Equal(t, "abc", TruncateBytes("abc", 10))
	assert.Equal(t, "", TruncateBytes("漢", 2))
}

func TestMaxBaseBytes_AtLeastOne(t *testing.T) {
	assert.Equal(t, 1, MaxBaseBytes("."+strings.Repeat("x", 300)))
}

func TestBaseName_TrimsAfterTruncate(t *testing.T) {
	meta := sampleMeta()
	meta.Title = strings.Repeat("a", 241) + ". tail"

	got := BaseName("{title}", meta, 1, ".mp4")
	assert.Equal(t, strings.Repeat("a", 241), got)
}

func TestDir_RenamesAllVideosInOrder(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "b.mkv")
	touch(t, dir, "A.mp4")
	touch(t, dir, "readme.txt")

	got, err := Dir(dir, sampleMeta(), "{id}-{idx}")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, filepath.Join(dir, "A.mp4"), got[0].From)
	assert.Equal(t, filepath.Join(dir, "ABC-123-1.mp4"), got[0].To)
	assert.Equal(t, filepath.Join(dir, "b.mkv"), got[1].From)
	assert.Equal(t, filepath.Join(dir, "ABC-123-2.mkv"), got[1].To)

	assert.ElementsMatch(t, []string{"ABC-123-1.mp4", "ABC-123-2.mkv", "readme.txt"}, names(t, dir))
}

func TestDir_CollisionSuffixNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "x1.mp4")
	touch(t, dir, "x2.mp4")
	touch(t, dir, "x3.mp4")

	got, err := Dir(dir, sampleMeta(), "{id}")
	require.NoError(t, err)
	require.Len(t, got, 3)

	assert.Equal(t, "ABC-123.mp4", filepath.Base(got[0].To))
	assert.Equal(t, "ABC-123_2.mp4", filepath.Base(got[1].To))
	assert.Equal(t, "ABC-123_3.mp4", filepath.Base(got[2].To))
	assert.Len(t, names(t, dir), 3)
}

func TestDir_OccupiedTargetOutsideBatchGetsSuffix(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "video.mp4")
	// 目标名被一个不参与批次的目录占用。
	require.NoError(t, os.Mkdir(filepath.Join(dir, "ABC-123.mp4"), 0o755))

	got, err := Dir(dir, sampleMeta(), "{id}")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "ABC-123_2.mp4", filepath.Base(got[0].To))
	assert.DirExists(t, filepath.Join(dir, "ABC-123.mp4"))
}

func TestDir_TempNameConflictAbortsBeforeRename(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	touch(t, dir, "b.mp4")
	// 临时文件名被批次外的目录占用。
	require.NoError(t, os.Mkdir(filepath.Join(dir, TempPrefix+"2.mp4"), 0o755))

	_, err := Dir(dir, sampleMeta(), "{id}")
	require.Error(t, err)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, PhasePrepare, re.Phase)
	assert.Empty(t, re.Pending)

	// 没有任何文件被改名。
	assert.FileExists(t, filepath.Join(dir, "a.mp4"))
	assert.FileExists(t, filepath.Join(dir, "b.mp4"))
}

func TestDir_TempNameHeldByBatchMemberIsNotConflict(t *testing.T) {
	dir := t.TempDir()
	// 按小写排序 "__nfofetch_tmp_2.mp4" 为第 1 个，b.mp4 的临时名正是它的原名。
	touch(t, dir, TempPrefix+"2.mp4")
	touch(t, dir, "b.mp4")

	got, err := Dir(dir, sampleMeta(), "{id}")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, filepath.Join(dir, TempPrefix+"2.mp4"), got[0].From)
	assert.Equal(t, filepath.Join(dir, "ABC-123.mp4"), got[0].To)
	assert.Equal(t, filepath.Join(dir, "b.mp4"), got[1].From)
	assert.Equal(t, filepath.Join(dir, "ABC-123_2.mp4"), got[1].To)
	assertContent(t, got[0].To, TempPrefix+"2.mp4")
	assertContent(t, got[1].To, "b.mp4")
}

func TestDir_OccupantMovesBeforeItsNameIsReused(t *testing.T) {
	dir := t.TempDir()
	// "0.mp4" 排第 1，其临时名 __nfofetch_tmp_1.mp4 是第 2 个文件的原名。
	touch(t, dir, "0.mp4")
	touch(t, dir, TempPrefix+"1.mp4")

	got, err := Dir(dir, sampleMeta(), "{id}")
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, filepath.Join(dir, "0.mp4"), got[0].From)
	assertContent(t, got[0].To, "0.mp4")
	assert.Equal(t, filepath.Join(dir, TempPrefix+"1.mp4"), got[1].From)
	assertContent(t, got[1].To, TempPrefix+"1.mp4")
	assert.ElementsMatch(t, []string{"ABC-123.mp4", "ABC-123_2.mp4"}, names(t, dir))
}

func TestDir_FailureReportsPendingTempFiles(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4")
	touch(t, dir, "b.mp4")

	old := renameFile
	calls := 0
	renameFile = func(src, dst string) error {
		calls++
		// 第 3 次调用是第二阶段的第一个 rename。
		if calls == 3 {
			return os.ErrPermission
		}
		return os.Rename(src, dst)
	}
	defer func() { renameFile = old }()

	_, err := Dir(dir, sampleMeta(), "{id}")
	require.Error(t, err)

	var re *Error
	require.True(t, errors.As(err, &re))
	assert.Equal(t, PhaseFinal, re.Phase)
	assert.ErrorIs(t, err, os.ErrPermission)
	require.Len(t, re.Pending, 2)
	assert.Equal(t, filepath.Join(dir, "a.mp4"), re.Pending[0].From)
	assert.Equal(t, filepath.Join(dir, TempPrefix+"1.mp4"), re.Pending[0].To)
	assert.Contains(t, err.Error(), TempPrefix+"1.mp4")

	// 文件停留在临时名，没有丢失。
	assert.ElementsMatch(t, []string{TempPrefix + "1.mp4", TempPrefix + "2.mp4"}, names(t, dir))
}

func TestDir_EmptyFormatOrNoVideosIsNoop(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "a.mp4")

	got, err := Dir(dir, sampleMeta(), "   ")
	require.NoError(t, err)
	assert.Empty(t, got)

	empty := t.TempDir()
	got, err = Dir(empty, sampleMeta(), "{id}")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestLookup(t *testing.T) {
	r := []domain.RenamedFile{{From: "/a/x.mp4", To: "/a/y.mp4"}}
	assert.Equal(t, "/a/y.mp4", Lookup(r, "/a/x.mp4"))
	assert.Equal(t, "/a/z.mp4", Lookup(r, "/a/z.mp4"))
}

func touch(t *testing.T, dir, name string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(name), 0o644))
}

func assertContent(t *testing.T, path, want string) {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(b))
}

func names(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Name())
	}
	sort.Strings(out)
	return out
}
