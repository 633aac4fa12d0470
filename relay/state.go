package relay

import "sync"

// Callbacks 外部协作者（渲染层）实现的回调
type Callbacks interface {
	// OnRemoteMove 远端落子到达时由 Peer Reader 调用
	OnRemoteMove(MoveMessage)
	// OnGameStart 第一次建立连接时调用，每局只触发一次
	OnGameStart()
}

// CallbackFuncs 以函数形式实现 Callbacks；nil 字段为空操作
type CallbackFuncs struct {
	RemoteMove func(MoveMessage)
	GameStart  func()
}

func (f CallbackFuncs) OnRemoteMove(m MoveMessage) {
	if f.RemoteMove != nil {
		f.RemoteMove(m)
	}
}

func (f CallbackFuncs) OnGameStart() {
	if f.GameStart != nil {
		f.GameStart()
	}
}

// GameState 显式的"对局已开始"状态，替代多连接协程共享的全局标志
type GameState struct {
	mu      sync.Mutex
	started bool
	onStart func()
}

func newGameState(onStart func()) *GameState {
	return &GameState{onStart: onStart}
}

// Start 切换到已开始；仅第一次调用时触发回调并返回 true
func (s *GameState) Start() bool {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return false
	}
	s.started = true
	s.mu.Unlock()

	if s.onStart != nil {
		s.onStart()
	}
	return true
}

// Started 是否已开始
func (s *GameState) Started() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.started
}

// Reset 新开一局（对应重新开始按钮），下次连接会再次触发 OnGameStart
func (s *GameState) Reset() {
	s.mu.Lock()
	s.started = false
	s.mu.Unlock()
}
