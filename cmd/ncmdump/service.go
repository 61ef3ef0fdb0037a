package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"ncmdump.dev/cli/internal/cache"
	"ncmdump.dev/cli/internal/netease"
)

// ServiceMessage 服务消息结构
type ServiceMessage struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// ServiceResponse 服务响应结构
type ServiceResponse struct {
	ID        string      `json:"id"`
	Type      string      `json:"type"`
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Timestamp int64       `json:"timestamp"`
}

// Session 会话结构
type Session struct {
	ID         string
	CreatedAt  time.Time
	LastActive time.Time
	Files      []FileTask
	Status     string
	Options    ProcessOptions
	Results    *BatchResponse
	mutex      sync.RWMutex
}

// DumpService exposes the converter over a local IPC endpoint so a GUI
// shell can drive it: a named pipe on Windows, a unix socket elsewhere.
// Clients speak newline-delimited JSON messages.
type DumpService struct {
	logger   *zap.Logger
	fetcher  *netease.Fetcher // shared across sessions, closed on Stop
	sessions map[string]*Session
	mutex    sync.RWMutex
	ctx      context.Context
	cancel   context.CancelFunc
	listener net.Listener
}

func NewDumpService(logger *zap.Logger, coverCache *cache.CoverCache) *DumpService {
	ctx, cancel := context.WithCancel(context.Background())
	return &DumpService{
		logger:   logger,
		fetcher:  netease.NewFetcher(coverCache, logger),
		sessions: make(map[string]*Session),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start 启动服务
func (s *DumpService) Start(pipeName string) error {
	addr := defaultListenAddress(pipeName)

	listener, err := listenIPC(addr)
	if err != nil {
		return fmt.Errorf("启动服务监听失败: %w", err)
	}
	s.listener = listener

	s.logger.Info("服务启动成功", zap.String("地址", addr))

	go s.cleanupSessions()

	for {
		select {
		case <-s.ctx.Done():
			return nil
		default:
			conn, err := s.listener.Accept()
			if err != nil {
				select {
				case <-s.ctx.Done():
					return nil
				default:
				}
				s.logger.Error("接受连接失败", zap.Error(err))
				continue
			}
			go s.handleConnection(conn)
		}
	}
}

// Stop 停止服务
func (s *DumpService) Stop() error {
	s.cancel()
	s.fetcher.Close()
	if s.listener != nil {
		return s.listener.Close()
	}
	return nil
}

func (s *DumpService) handleConnection(conn net.Conn) {
	defer conn.Close()

	s.logger.Info("新客户端连接", zap.String("远程地址", conn.RemoteAddr().String()))

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		var msg ServiceMessage
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			_ = encoder.Encode(errorResponse("", "解析消息失败", err))
			continue
		}

		response := s.handleMessage(&msg)
		if err := encoder.Encode(response); err != nil {
			s.logger.Error("发送响应失败", zap.Error(err))
			break
		}
	}

	if err := scanner.Err(); err != nil {
		s.logger.Error("读取连接数据失败", zap.Error(err))
	}
}

func (s *DumpService) handleMessage(msg *ServiceMessage) *ServiceResponse {
	switch msg.Type {
	case "start_session":
		return s.handleStartSession(msg)
	case "add_files":
		return s.handleAddFiles(msg)
	case "start_processing":
		return s.handleStartProcessing(msg)
	case "get_progress":
		return s.handleGetProgress(msg)
	case "end_session":
		return s.handleEndSession(msg)
	default:
		return errorResponse(msg.ID, "未知消息类型", nil)
	}
}

func (s *DumpService) handleStartSession(msg *ServiceMessage) *ServiceResponse {
	sessionID := fmt.Sprintf("session_%d", time.Now().UnixNano())

	session := &Session{
		ID:         sessionID,
		CreatedAt:  time.Now(),
		LastActive: time.Now(),
		Files:      make([]FileTask, 0),
		Status:     "created",
	}

	s.mutex.Lock()
	s.sessions[sessionID] = session
	s.mutex.Unlock()

	s.logger.Info("创建新会话", zap.String("会话ID", sessionID))

	return successResponse(msg.ID, "session_started", map[string]string{"session_id": sessionID})
}

func (s *DumpService) session(id string) (*Session, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	session, ok := s.sessions[id]
	return session, ok
}

func (s *DumpService) handleAddFiles(msg *ServiceMessage) *ServiceResponse {
	var payload struct {
		SessionID string     `json:"session_id"`
		Files     []FileTask `json:"files"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return errorResponse(msg.ID, "无效的消息数据格式", err)
	}

	session, exists := s.session(payload.SessionID)
	if !exists {
		return errorResponse(msg.ID, "会话不存在", nil)
	}

	// 验证文件存在性与扩展名
	validFiles := make([]FileTask, 0, len(payload.Files))
	for _, file := range payload.Files {
		if _, err := os.Stat(file.InputPath); err != nil {
			s.logger.Warn("文件不存在", zap.String("路径", file.InputPath))
			continue
		}
		if !strings.HasSuffix(strings.ToLower(file.InputPath), ".ncm") {
			s.logger.Warn("不支持的文件格式", zap.String("路径", file.InputPath))
			continue
		}
		validFiles = append(validFiles, file)
	}

	session.mutex.Lock()
	session.Files = append(session.Files, validFiles...)
	session.LastActive = time.Now()
	total := len(session.Files)
	session.mutex.Unlock()

	s.logger.Info("添加文件到会话",
		zap.String("会话ID", payload.SessionID),
		zap.Int("有效文件数", len(validFiles)),
		zap.Int("总文件数", len(payload.Files)))

	return successResponse(msg.ID, "files_added", map[string]interface{}{
		"added_count": len(validFiles),
		"total_files": total,
	})
}

func (s *DumpService) handleStartProcessing(msg *ServiceMessage) *ServiceResponse {
	var payload struct {
		SessionID string         `json:"session_id"`
		Options   ProcessOptions `json:"options"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return errorResponse(msg.ID, "无效的消息数据格式", err)
	}

	session, exists := s.session(payload.SessionID)
	if !exists {
		return errorResponse(msg.ID, "会话不存在", nil)
	}

	session.mutex.Lock()
	defer session.mutex.Unlock()

	if session.Status == "processing" {
		return errorResponse(msg.ID, "会话正在处理中", nil)
	}
	if len(session.Files) == 0 {
		return errorResponse(msg.ID, "没有文件需要处理", nil)
	}

	session.Status = "processing"
	session.Options = payload.Options
	session.LastActive = time.Now()

	go s.processSessionFiles(session)

	s.logger.Info("开始处理会话文件",
		zap.String("会话ID", payload.SessionID),
		zap.Int("文件数量", len(session.Files)))

	return successResponse(msg.ID, "processing_started", map[string]interface{}{
		"session_id": payload.SessionID,
		"file_count": len(session.Files),
		"status":     "processing",
	})
}

func (s *DumpService) handleGetProgress(msg *ServiceMessage) *ServiceResponse {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return errorResponse(msg.ID, "无效的消息数据格式", err)
	}

	session, exists := s.session(payload.SessionID)
	if !exists {
		return errorResponse(msg.ID, "会话不存在", nil)
	}

	session.mutex.RLock()
	defer session.mutex.RUnlock()

	data := map[string]interface{}{
		"session_id":  payload.SessionID,
		"status":      session.Status,
		"total_files": len(session.Files),
	}
	if session.Results != nil {
		data["success_count"] = session.Results.SuccessCount
		data["failed_count"] = session.Results.FailedCount
		data["results"] = session.Results.Results
	}
	return successResponse(msg.ID, "progress_update", data)
}

func (s *DumpService) handleEndSession(msg *ServiceMessage) *ServiceResponse {
	var payload struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		return errorResponse(msg.ID, "无效的消息数据格式", err)
	}

	s.mutex.Lock()
	_, exists := s.sessions[payload.SessionID]
	if exists {
		delete(s.sessions, payload.SessionID)
	}
	s.mutex.Unlock()

	if !exists {
		return errorResponse(msg.ID, "会话不存在", nil)
	}

	s.logger.Info("结束会话", zap.String("会话ID", payload.SessionID))

	return successResponse(msg.ID, "session_ended", map[string]interface{}{
		"session_id": payload.SessionID,
		"status":     "ended",
	})
}

func (s *DumpService) processSessionFiles(session *Session) {
	session.mutex.RLock()
	files := make([]FileTask, len(session.Files))
	copy(files, session.Files)
	options := session.Options
	session.mutex.RUnlock()

	batchProc := newBatchProcessor(options, s.fetcher, s.logger)
	response := batchProc.processBatch(&BatchRequest{Files: files, Options: options})

	session.mutex.Lock()
	session.Results = response
	switch {
	case response.SuccessCount == len(files):
		session.Status = "completed"
	case response.SuccessCount > 0:
		session.Status = "partial_success"
	default:
		session.Status = "error"
	}
	session.LastActive = time.Now()
	session.mutex.Unlock()

	s.logger.Info("文件处理完成",
		zap.String("会话ID", session.ID),
		zap.Int("成功", response.SuccessCount),
		zap.Int("失败", response.FailedCount))
}

// cleanupSessions 清理过期会话
func (s *DumpService) cleanupSessions() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.performCleanup()
		}
	}
}

func (s *DumpService) performCleanup() {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	now := time.Now()
	for id, session := range s.sessions {
		if now.Sub(session.LastActive) > 30*time.Minute {
			delete(s.sessions, id)
			s.logger.Info("清理过期会话", zap.String("会话ID", id))
		}
	}
}

func successResponse(id, responseType string, data interface{}) *ServiceResponse {
	return &ServiceResponse{
		ID:        id,
		Type:      responseType,
		Success:   true,
		Data:      data,
		Timestamp: time.Now().Unix(),
	}
}

func errorResponse(id, errorMsg string, err error) *ServiceResponse {
	errorText := errorMsg
	if err != nil {
		errorText = fmt.Sprintf("%s: %v", errorMsg, err)
	}
	return &ServiceResponse{
		ID:        id,
		Type:      "error",
		Success:   false,
		Error:     errorText,
		Timestamp: time.Now().Unix(),
	}
}

// runServiceMode 运行服务模式
func runServiceMode(logger *zap.Logger, pipeName string, coverCache *cache.CoverCache) error {
	logger.Info("启动服务模式", zap.String("管道名称", pipeName))

	service := NewDumpService(logger, coverCache)
	return service.Start(pipeName)
}
