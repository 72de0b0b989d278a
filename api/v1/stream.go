package v1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"sync"
	"time"

	"osaccount/internal/model"
	"osaccount/internal/plugin/types"
	"osaccount/internal/service"
	"osaccount/pkg/async"
	"osaccount/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// 客户端操作
const (
	opAddCredential     = "add_credential"
	opUpdateCredential  = "update_credential"
	opAuth              = "auth"
	opAuthUser          = "auth_user"
	opRegisterInputer   = "register_inputer"
	opUnregisterInputer = "unregister_inputer"
	opSetData           = "set_data"
	opSubscribe         = "subscribe"
	opUnsubscribe       = "unsubscribe"
)

// 服务端帧类型
const (
	frameStarted     = "started"
	frameAcquireInfo = "acquire_info"
	frameResult      = "result"
	frameGetData     = "get_data"
	frameEvent       = "event"
	frameError       = "error"
)

var errUnknownOp = errors.New("unknown op")

// StreamConfig WebSocket连接配置
type StreamConfig struct {
	PingInterval   time.Duration // 心跳间隔
	WriteWait      time.Duration // 写超时
	ReadWait       time.Duration // 读超时
	MaxMessageSize int64         // 最大消息大小
}

// StreamRequest 客户端请求帧
type StreamRequest struct {
	ID     string          `json:"id"`
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// StreamFrame 服务端帧，ID与触发它的请求一致
type StreamFrame struct {
	ID         string      `json:"id,omitempty"`
	Type       string      `json:"type"`
	Data       interface{} `json:"data,omitempty"`
	Error      string      `json:"error,omitempty"`
	ResultCode *int32      `json:"result_code,omitempty"`
	KitCode    int         `json:"kit_code,omitempty"`
}

type enrollParams struct {
	LocalID int `json:"local_id"`
	model.CredentialInfo
}

type authParams struct {
	LocalID    int                  `json:"local_id"`
	Challenge  uint64               `json:"challenge,string"`
	AuthType   model.AuthType       `json:"auth_type"`
	TrustLevel model.AuthTrustLevel `json:"trust_level"`
}

type inputerParams struct {
	AuthType model.AuthType `json:"auth_type"`
}

type setDataParams struct {
	RequestID string            `json:"request_id"`
	SubType   model.AuthSubType `json:"sub_type"`
	Data      []byte            `json:"data"`
}

type eventParams struct {
	Event model.EventType `json:"event"`
	Name  string          `json:"name"`
}

// StreamHandler 承载需要回调的操作：凭据录入、认证、数据输入者和账号事件
type StreamHandler struct {
	manager  *service.AccountManager
	identity *service.IdentityManager
	auth     *service.UserAuth
	pinAuth  *service.PINAuth
	config   StreamConfig
	upgrader websocket.Upgrader
}

// NewStreamHandler 创建流处理器实例
func NewStreamHandler(
	manager *service.AccountManager,
	identity *service.IdentityManager,
	auth *service.UserAuth,
	pinAuth *service.PINAuth,
	config StreamConfig,
) *StreamHandler {
	if config.PingInterval <= 0 {
		config.PingInterval = 30 * time.Second
	}
	if config.WriteWait <= 0 {
		config.WriteWait = 10 * time.Second
	}
	if config.ReadWait <= config.PingInterval {
		config.ReadWait = config.PingInterval * 2
	}
	if config.MaxMessageSize <= 0 {
		config.MaxMessageSize = 1 << 16
	}
	return &StreamHandler{
		manager:  manager,
		identity: identity,
		auth:     auth,
		pinAuth:  pinAuth,
		config:   config,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true // 调用方已由令牌认证
			},
		},
	}
}

// Register 注册路由
func (h *StreamHandler) Register(r *gin.RouterGroup, authMiddleware *middleware.AuthMiddleware) {
	r.GET("/stream", authMiddleware.HandleAuth(), h.HandleWebSocket)
}

// HandleWebSocket 升级连接并处理客户端请求，连接关闭时清理该连接上的注册
func (h *StreamHandler) HandleWebSocket(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[ERROR] WebSocket升级失败: %v", err)
		return
	}

	ctx, cancel := context.WithCancel(c.Request.Context())
	s := &streamConn{
		handler:  h,
		conn:     conn,
		ctx:      ctx,
		out:      make(chan StreamFrame, 64),
		pending:  make(map[string]types.DataSetter),
		inputers: make(map[model.AuthType]bool),
		subs:     make(map[eventParams][]*service.Subscription),
		contexts: make(map[uint64]bool),
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.writePump()
	}()
	s.readPump()
	cancel()
	<-done
	s.cleanup()
}

// streamConn 单个WebSocket连接的状态
type streamConn struct {
	handler *StreamHandler
	conn    *websocket.Conn
	ctx     context.Context
	out     chan StreamFrame

	mu       sync.Mutex
	pending  map[string]types.DataSetter // get_data请求ID到回传者
	inputers map[model.AuthType]bool
	subs     map[eventParams][]*service.Subscription
	contexts map[uint64]bool // 进行中的认证上下文
}

// send 投递一帧，连接关闭后丢弃
func (s *streamConn) send(frame StreamFrame) {
	select {
	case s.out <- frame:
	case <-s.ctx.Done():
	}
}

func (s *streamConn) sendResult(id string, data interface{}) {
	s.send(StreamFrame{ID: id, Type: frameResult, Data: data})
}

// sendError 失败结果，data可携带认证失败时的剩余次数等信息
func (s *streamConn) sendError(id string, err error, data interface{}) {
	code := int32(service.CodeOf(err))
	s.send(StreamFrame{
		ID:         id,
		Type:       frameError,
		Data:       data,
		Error:      err.Error(),
		ResultCode: &code,
		KitCode:    service.KitCodeOf(err),
	})
}

// tipFunc 把执行器提示转发为acquire_info帧
func (s *streamConn) tipFunc(id string) types.TipFunc {
	return func(info model.AcquireInfo) {
		s.send(StreamFrame{ID: id, Type: frameAcquireInfo, Data: info})
	}
}

func (s *streamConn) writePump() {
	ticker := time.NewTicker(s.handler.config.PingInterval)
	defer func() {
		ticker.Stop()
		s.conn.Close()
	}()

	for {
		select {
		case frame := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(s.handler.config.WriteWait))
			if err := s.conn.WriteJSON(frame); err != nil {
				log.Printf("[DEBUG] WebSocket写入失败: %v", err)
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(s.handler.config.WriteWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-s.ctx.Done():
			s.conn.SetWriteDeadline(time.Now().Add(s.handler.config.WriteWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *streamConn) readPump() {
	cfg := s.handler.config
	s.conn.SetReadLimit(cfg.MaxMessageSize)
	s.conn.SetReadDeadline(time.Now().Add(cfg.ReadWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(cfg.ReadWait))
	})

	for {
		var req StreamRequest
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("[WARN] WebSocket连接异常关闭: %v", err)
			}
			return
		}
		s.conn.SetReadDeadline(time.Now().Add(cfg.ReadWait))
		s.dispatch(&req)
	}
}

func (s *streamConn) dispatch(req *StreamRequest) {
	var err error
	switch req.Op {
	case opAddCredential:
		err = s.enroll(req, false)
	case opUpdateCredential:
		err = s.enroll(req, true)
	case opAuth:
		err = s.authenticate(req, false)
	case opAuthUser:
		err = s.authenticate(req, true)
	case opRegisterInputer:
		err = s.registerInputer(req)
	case opUnregisterInputer:
		err = s.unregisterInputer(req)
	case opSetData:
		err = s.setData(req)
	case opSubscribe:
		err = s.subscribe(req)
	case opUnsubscribe:
		err = s.unsubscribe(req)
	default:
		err = fmt.Errorf("%w: %w %q", service.ErrInvalidParameters, errUnknownOp, req.Op)
	}
	if err != nil {
		s.sendError(req.ID, err, nil)
	}
}

// decode 解析请求参数，格式错误归为INVALID_PARAMETERS
func decode(req *StreamRequest, v interface{}) error {
	if len(req.Params) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params, v); err != nil {
		return fmt.Errorf("%w: %v", service.ErrInvalidParameters, err)
	}
	return nil
}

func (s *streamConn) enroll(req *StreamRequest, update bool) error {
	var p enrollParams
	if err := decode(req, &p); err != nil {
		return err
	}
	info := p.CredentialInfo
	h := s.handler
	var task *async.Task[*model.RequestResult]
	if update {
		task = h.identity.UpdateCredential(s.ctx, p.LocalID, &info, s.tipFunc(req.ID))
	} else {
		task = h.identity.AddCredential(s.ctx, p.LocalID, &info, s.tipFunc(req.ID))
	}
	s.send(StreamFrame{ID: req.ID, Type: frameStarted})
	task.OnComplete(func(result *model.RequestResult, err error) {
		if err != nil {
			s.sendError(req.ID, err, nil)
			return
		}
		s.sendResult(req.ID, result)
	})
	return nil
}

func (s *streamConn) authenticate(req *StreamRequest, withUser bool) error {
	var p authParams
	if err := decode(req, &p); err != nil {
		return err
	}
	h := s.handler
	tip := s.tipFunc(req.ID)
	var contextID uint64
	var task *async.Task[*model.AuthResult]
	if withUser {
		contextID, task = h.auth.AuthUser(s.ctx, p.LocalID, p.Challenge, p.AuthType, p.TrustLevel, tip)
	} else {
		contextID, task = h.auth.Auth(s.ctx, p.Challenge, p.AuthType, p.TrustLevel, tip)
	}

	if contextID != 0 {
		s.mu.Lock()
		s.contexts[contextID] = true
		s.mu.Unlock()
		s.send(StreamFrame{ID: req.ID, Type: frameStarted, Data: gin.H{"context_id": strconv.FormatUint(contextID, 10)}})
	}
	task.OnComplete(func(r *model.AuthResult, err error) {
		if contextID != 0 {
			s.mu.Lock()
			delete(s.contexts, contextID)
			s.mu.Unlock()
		}
		if err != nil {
			s.sendError(req.ID, err, r)
			return
		}
		s.sendResult(req.ID, r)
	})
	return nil
}

// streamInputer 把执行器的数据请求转发给客户端
type streamInputer struct {
	conn     *streamConn
	authType model.AuthType
}

func (i *streamInputer) OnGetData(setter types.DataSetter) {
	requestID := uuid.New().String()
	i.conn.mu.Lock()
	i.conn.pending[requestID] = setter
	i.conn.mu.Unlock()
	i.conn.send(StreamFrame{Type: frameGetData, Data: gin.H{
		"request_id": requestID,
		"auth_type":  i.authType,
	}})
}

func inputerType(p inputerParams) model.AuthType {
	if p.AuthType == 0 {
		return model.AuthTypePIN
	}
	return p.AuthType
}

func (s *streamConn) registerInputer(req *StreamRequest) error {
	var p inputerParams
	if err := decode(req, &p); err != nil {
		return err
	}
	authType := inputerType(p)
	ok, err := s.handler.pinAuth.RegisterProvider(s.ctx, authType, &streamInputer{conn: s, authType: authType}).Await(s.ctx)
	if err != nil {
		return err
	}
	if ok {
		s.mu.Lock()
		s.inputers[authType] = true
		s.mu.Unlock()
	}
	s.sendResult(req.ID, gin.H{"registered": ok})
	return nil
}

func (s *streamConn) unregisterInputer(req *StreamRequest) error {
	var p inputerParams
	if err := decode(req, &p); err != nil {
		return err
	}
	authType := inputerType(p)
	s.mu.Lock()
	owned := s.inputers[authType]
	delete(s.inputers, authType)
	s.mu.Unlock()
	if owned {
		if _, err := s.handler.pinAuth.UnregisterProvider(s.ctx, authType).Await(s.ctx); err != nil {
			return err
		}
	}
	s.sendResult(req.ID, gin.H{"unregistered": owned})
	return nil
}

func (s *streamConn) setData(req *StreamRequest) error {
	var p setDataParams
	if err := decode(req, &p); err != nil {
		return err
	}
	s.mu.Lock()
	setter, ok := s.pending[p.RequestID]
	delete(s.pending, p.RequestID)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: unknown request_id %q", service.ErrInvalidParameters, p.RequestID)
	}
	setter.OnSetData(p.SubType, p.Data)
	s.sendResult(req.ID, nil)
	return nil
}

func (s *streamConn) subscribe(req *StreamRequest) error {
	var p eventParams
	if err := decode(req, &p); err != nil {
		return err
	}
	sub, err := s.handler.manager.On(s.ctx, p.Event, p.Name, func(ev model.AccountEvent) {
		s.send(StreamFrame{ID: req.ID, Type: frameEvent, Data: ev})
	}).Await(s.ctx)
	if err != nil {
		return err
	}
	// 同名重复订阅各自保留，退订时一并取消
	s.mu.Lock()
	s.subs[p] = append(s.subs[p], sub)
	s.mu.Unlock()
	s.sendResult(req.ID, nil)
	return nil
}

func (s *streamConn) unsubscribe(req *StreamRequest) error {
	var p eventParams
	if err := decode(req, &p); err != nil {
		return err
	}
	s.mu.Lock()
	subs, ok := s.subs[p]
	delete(s.subs, p)
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: not subscribed to %s/%s", service.ErrInvalidParameters, p.Event, p.Name)
	}
	for _, sub := range subs {
		if _, err := s.handler.manager.Off(s.ctx, p.Event, p.Name, sub).Await(s.ctx); err != nil {
			return err
		}
	}
	s.sendResult(req.ID, nil)
	return nil
}

// cleanup 连接关闭后取消认证、注销输入者和订阅
func (s *streamConn) cleanup() {
	// 连接的ctx已取消，清理操作沿用其中的调用方身份
	ctx := context.WithoutCancel(s.ctx)
	h := s.handler

	s.mu.Lock()
	contexts := s.contexts
	inputers := s.inputers
	subs := s.subs
	s.contexts = map[uint64]bool{}
	s.inputers = map[model.AuthType]bool{}
	s.subs = map[eventParams][]*service.Subscription{}
	s.pending = map[string]types.DataSetter{}
	s.mu.Unlock()

	for id := range contexts {
		h.auth.CancelAuth(ctx, id)
	}
	for authType := range inputers {
		h.pinAuth.UnregisterProvider(ctx, authType)
	}
	for p, list := range subs {
		for _, sub := range list {
			h.manager.Off(ctx, p.Event, p.Name, sub)
		}
	}
	log.Printf("[DEBUG] WebSocket连接已清理: auth=%d, inputers=%d, subscriptions=%d", len(contexts), len(inputers), len(subs))
}
