package scan

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/John-Robertt/nfofetch/internal/domain"
)

var videoExts = map[string]struct{}{
	".mp4": {}, ".mkv": {}, ".avi": {}, ".wmv": {},
	".mov": {}, ".webm": {}, ".m4v": {}, ".flv": {},
}

// IsVideo 按扩展名（忽略大小写）判断是否为可识别的视频文件。
func IsVideo(name string) bool {
	_, ok := videoExts[strings.ToLower(filepath.Ext(name))]
	return ok
}

// ListVideos 列出 dir 下（不递归）的视频文件。
//
// 注意：只做 stat（DirEntry.Info），不读文件内容；
// 输出按小写文件名排序，保证重命名时 {idx} 的分配稳定。
func ListVideos(dir string) ([]domain.VideoFile, error) {
	dir, err := filepath.Abs(filepath.Clean(dir))
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	files := make([]domain.VideoFile, 0, len(entries))
	for _, d := range entries {
		if d.IsDir() || !IsVideo(d.Name()) {
			continue
		}
		info, err := d.Info()
		if err != nil {
			return nil, err
		}
		if !info.Mode().IsRegular() {
			continue
		}
		name := d.Name()
		ext := filepath.Ext(name)
		files = append(files, domain.VideoFile{
			AbsPath: filepath.Join(dir, name),
			Name:    name,
			Base:    strings.TrimSuffix(name, ext),
			Ext:     ext,
			Size:    info.Size(),
		})
	}

	sort.Slice(files, func(i, j int) bool {
		a, b := strings.ToLower(files[i].Name), strings.ToLower(files[j].Name)
		if a != b {
			return a < b
		}
		return files[i].Name < files[j].Name
	})
	return files, nil
}
