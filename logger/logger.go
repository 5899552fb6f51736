package logger

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// LogLevel 日志级别
type LogLevel int

const (
	DEBUG LogLevel = iota // 调试信息（最详细）
	INFO                  // 一般信息
	WARN                  // 警告信息
	ERROR                 // 错误信息
	FATAL                 // 致命错误（程序无法继续）
)

var (
	globalLevel = INFO
	mu          sync.RWMutex

	// 时区
	globalLocation = time.Local
	locationMu     sync.RWMutex

	// 应用日志只在 DEBUG 级别落盘，Web 日志由 gin 中间件写入
	appFile = &dailyFile{prefix: "app-tradeforge"}
	webFile = &dailyFile{prefix: "web-gin"}

	logDir   = "logs"
	logDirMu sync.RWMutex

	// SQLite 日志存储（通过函数指针避免循环依赖）
	logStorageWriter func(level, message string)
	logStorageMu     sync.RWMutex
)

// String 返回日志级别的字符串表示
func (l LogLevel) String() string {
	switch l {
	case DEBUG:
		return "DEBUG"
	case INFO:
		return "INFO"
	case WARN:
		return "WARN"
	case ERROR:
		return "ERROR"
	case FATAL:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel 解析日志级别字符串，无法识别时返回 INFO
func ParseLogLevel(level string) LogLevel {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return DEBUG
	case "INFO":
		return INFO
	case "WARN", "WARNING":
		return WARN
	case "ERROR":
		return ERROR
	case "FATAL":
		return FATAL
	default:
		return INFO
	}
}

// SetLevel 设置全局日志级别，DEBUG 时启用文件日志
func SetLevel(level LogLevel) {
	mu.Lock()
	globalLevel = level
	mu.Unlock()

	if level == DEBUG {
		if err := appFile.open(); err != nil {
			log.Printf("[WARN] 打开日志文件失败: %v，将只输出到控制台", err)
		}
	} else {
		appFile.close()
	}
}

// GetLevel 获取全局日志级别
func GetLevel() LogLevel {
	mu.RLock()
	defer mu.RUnlock()
	return globalLevel
}

// SetLocation 设置日志时区
func SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	locationMu.Lock()
	defer locationMu.Unlock()
	globalLocation = loc
}

// LoadLocation 按名称加载时区，"UTC+8" 之类的写法回退为固定时区
func LoadLocation(name string) (*time.Location, error) {
	if name == "" {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(name)
	if err == nil {
		return loc, nil
	}
	if name == "UTC+8" || name == "Asia/Shanghai" {
		return time.FixedZone("UTC+8", 8*60*60), nil
	}
	return nil, err
}

func location() *time.Location {
	locationMu.RLock()
	defer locationMu.RUnlock()
	return globalLocation
}

// SetLogDir 设置日志目录，已打开的文件在下次轮转时切换
func SetLogDir(dir string) {
	if dir == "" {
		return
	}
	logDirMu.Lock()
	logDir = dir
	logDirMu.Unlock()
}

func currentLogDir() string {
	logDirMu.RLock()
	defer logDirMu.RUnlock()
	return logDir
}

// dailyFile 按日期轮转的日志文件
type dailyFile struct {
	prefix string

	mu     sync.Mutex
	file   *os.File
	logger *log.Logger
	date   string
}

func (d *dailyFile) open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rotateLocked()
}

// rotateLocked 调用前必须持有 d.mu
func (d *dailyFile) rotateLocked() error {
	today := time.Now().In(location()).Format("2006-01-02")
	if d.logger != nil && d.date == today {
		return nil
	}

	if d.file != nil {
		d.file.Close()
		d.file, d.logger, d.date = nil, nil, ""
	}

	dir := currentLogDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("创建日志文件夹失败: %w", err)
	}

	name := filepath.Join(dir, fmt.Sprintf("%s-%s.log", d.prefix, today))
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	d.file = file
	d.date = today
	d.logger = log.New(file, "", 0)
	return nil
}

func (d *dailyFile) write(message string) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.logger == nil {
		return
	}
	if err := d.rotateLocked(); err != nil {
		return
	}
	d.logger.Printf("%s %s", time.Now().In(location()).Format("2006/01/02 15:04:05"), message)
}

func (d *dailyFile) close() {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.file != nil {
		d.file.Close()
	}
	d.file, d.logger, d.date = nil, nil, ""
}

// InitLogStorage 注册日志持久化回调
func InitLogStorage(writer func(level, message string)) {
	logStorageMu.Lock()
	defer logStorageMu.Unlock()
	logStorageWriter = writer
}

// InitWebLogger 初始化 Web 日志文件
func InitWebLogger() error {
	if err := webFile.open(); err != nil {
		return fmt.Errorf("打开 Web 日志文件失败: %w", err)
	}
	return nil
}

// WriteWebLog 写入 Web 日志（供 gin 中间件使用）
func WriteWebLog(message string) {
	webFile.write(message)
}

// Close 关闭文件日志（程序退出时调用）
func Close() {
	appFile.close()
	webFile.close()

	logStorageMu.Lock()
	defer logStorageMu.Unlock()
	logStorageWriter = nil
}

func emit(level LogLevel, message string) {
	log.Print(message)

	if GetLevel() == DEBUG {
		appFile.write(message)
	}

	logStorageMu.RLock()
	writer := logStorageWriter
	logStorageMu.RUnlock()

	if writer != nil {
		// 写入方自己负责异步
		func() {
			defer func() { recover() }()
			writer(level.String(), message)
		}()
	}
}

func logf(level LogLevel, format string, args ...interface{}) {
	if level < GetLevel() {
		return
	}
	emit(level, fmt.Sprintf("[%s] "+format, append([]interface{}{level.String()}, args...)...))
}

func logln(level LogLevel, args ...interface{}) {
	if level < GetLevel() {
		return
	}
	message := fmt.Sprintln(append([]interface{}{"[" + level.String() + "]"}, args...)...)
	emit(level, strings.TrimSuffix(message, "\n"))
}

// Debug 输出调试日志
func Debug(format string, args ...interface{}) {
	logf(DEBUG, format, args...)
}

// Info 输出一般信息日志
func Info(format string, args ...interface{}) {
	logf(INFO, format, args...)
}

// Infoln 输出一般信息日志（无格式）
func Infoln(args ...interface{}) {
	logln(INFO, args...)
}

// Warn 输出警告日志
func Warn(format string, args ...interface{}) {
	logf(WARN, format, args...)
}

// Error 输出错误日志
func Error(format string, args ...interface{}) {
	logf(ERROR, format, args...)
}

// Errorln 输出错误日志（无格式）
func Errorln(args ...interface{}) {
	logln(ERROR, args...)
}

// Fatal 输出致命错误日志并退出程序
func Fatal(format string, args ...interface{}) {
	logf(FATAL, format, args...)
	os.Exit(1)
}
