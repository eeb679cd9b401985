package domain

// VideoFile 描述目录中的一个视频文件（只做 stat，不读内容）。
//
// 不变量：AbsPath 必须是 clean + absolute。
type VideoFile struct {
	AbsPath string
	Name    string // 含扩展名
	Base    string // filename without ext
	Ext     string // 保留原大小写，例如 ".MP4"
	Size    int64
}
