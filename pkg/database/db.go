package database

// KVStore 定义持久化的键值存储接口
type KVStore interface {
	Get(key string) (string, bool, error) // 读取键值，不存在时 ok 为 false
	Set(key, value string) error          // 写入键值
}

// FileStore 定义收件箱文件处理状态存储接口
type FileStore interface {
	AddProcessedFile(path string) error        // 将文件标记为已处理
	IsFileProcessed(path string) (bool, error) // 检查文件是否已处理
}

// Store 汇总了 SQLite 存储提供的全部能力
type Store interface {
	KVStore
	FileStore
	Close() error // 关闭数据库连接
}
