package story

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// ProgressMessage - WebSocket으로 푸시되는 진행 메시지
type ProgressMessage struct {
	Type     string          `json:"type"` // "scene_update" | "progress"
	StoryID  string          `json:"storyId"`
	Image    *GeneratedImage `json:"image,omitempty"`
	Progress *Progress       `json:"progress,omitempty"`
}

// Hub - storyID별 WebSocket 구독자 관리
// 장면 상태가 바뀔 때마다 해당 스토리 구독자 전원에게 푸시한다.
type Hub struct {
	mu    sync.RWMutex
	conns map[string]map[*websocket.Conn]bool // storyID → 구독 커넥션
}

// NewHub - Hub 생성
func NewHub() *Hub {
	return &Hub{
		conns: make(map[string]map[*websocket.Conn]bool),
	}
}

// HandleWebSocket - 구독 커넥션 수락 + 종료 감지
func (h *Hub) HandleWebSocket(w http.ResponseWriter, r *http.Request, storyID string) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("❌ [Hub] WebSocket upgrade failed: %v", err)
		return
	}

	h.register(storyID, conn)
	log.Printf("🔗 [Hub] Client subscribed to story %s", storyID)

	defer func() {
		h.unregister(storyID, conn)
		conn.Close()
		log.Printf("🔗 [Hub] Client unsubscribed from story %s", storyID)
	}()

	// 클라이언트는 보내는 게 없다. 읽기 루프는 종료 감지용.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) register(storyID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.conns[storyID] == nil {
		h.conns[storyID] = make(map[*websocket.Conn]bool)
	}
	h.conns[storyID][conn] = true
}

func (h *Hub) unregister(storyID string, conn *websocket.Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.conns[storyID], conn)
	if len(h.conns[storyID]) == 0 {
		delete(h.conns, storyID)
	}
}

// BroadcastSceneUpdate - 장면 상태 전이 푸시
// 쓰기 실패한 커넥션은 조용히 제거한다.
func (h *Hub) BroadcastSceneUpdate(storyID string, img GeneratedImage) {
	h.broadcast(storyID, ProgressMessage{
		Type:    "scene_update",
		StoryID: storyID,
		Image:   &img,
	})
}

// BroadcastProgress - 집계 진행 상황 푸시
func (h *Hub) BroadcastProgress(storyID string, progress Progress) {
	h.broadcast(storyID, ProgressMessage{
		Type:     "progress",
		StoryID:  storyID,
		Progress: &progress,
	})
}

func (h *Hub) broadcast(storyID string, msg ProgressMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conn := range h.conns[storyID] {
		if err := conn.WriteJSON(msg); err != nil {
			conn.Close()
			delete(h.conns[storyID], conn)
		}
	}
}
