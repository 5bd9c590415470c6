package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/emotrack/backend/internal/analysis/emotion"
	"github.com/zhouzirui/emotrack/backend/internal/config"
)

type message struct {
	Type      string          `json:"type"`
	CaptureID string          `json:"captureId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
}

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds)

	if err := godotenv.Load(); err != nil {
		log.Printf("[WARN] 无法加载 .env，改用系统环境变量: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("配置加载失败: %v", err)
	}

	server := flag.String("server", "", "采集 WebSocket 地址，默认 ws://localhost<PORT>/api/capture/ws")
	file := flag.String("file", "", "JSON lines 事件文件，空行表示结束当前会话；留空则生成随机事件")
	count := flag.Int("n", 20, "随机事件数量 (未指定 -file 时)")
	interval := flag.Duration("interval", 100*time.Millisecond, "事件发送间隔")
	closeAtEnd := flag.Bool("close", true, "发送完毕后结束会话")
	timeout := flag.Duration("timeout", 2*time.Minute, "整体超时时间")

	flag.Parse()

	url := *server
	if url == "" {
		addr := cfg.Server.Addr
		if strings.HasPrefix(addr, ":") {
			addr = "localhost" + addr
		}
		url = "ws://" + addr + "/api/capture/ws"
	}

	var source io.Reader
	if *file != "" {
		f, err := os.Open(*file)
		if err != nil {
			log.Fatalf("打开事件文件失败: %v", err)
		}
		defer f.Close()
		source = f
	} else {
		source = strings.NewReader(syntheticEvents(*count, cfg.Capture.Convention))
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	if err := replay(ctx, url, source, *interval, *closeAtEnd); err != nil {
		log.Fatalf("回放失败: %v", err)
	}
}

func replay(ctx context.Context, url string, source io.Reader, interval time.Duration, closeAtEnd bool) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", url, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetReadDeadline(deadline)
	}

	hello, err := expect(conn, "connected")
	if err != nil {
		return err
	}
	log.Printf("已连接: capture=%s", hello.CaptureID)

	scanner := bufio.NewScanner(source)
	sent, pending := 0, false
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			if pending {
				if err := closeSession(conn); err != nil {
					return err
				}
				pending = false
			}
			continue
		}

		if err := conn.WriteJSON(message{Type: "event", Data: json.RawMessage(line)}); err != nil {
			return fmt.Errorf("send event: %w", err)
		}
		if _, err := expect(conn, "ack"); err != nil {
			return err
		}
		sent++
		pending = true

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read events: %w", err)
	}

	if closeAtEnd && pending {
		if err := closeSession(conn); err != nil {
			return err
		}
	}

	log.Printf("回放完成: 共发送 %d 个事件", sent)
	_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	return nil
}

func closeSession(conn *websocket.Conn) error {
	if err := conn.WriteJSON(message{Type: "close"}); err != nil {
		return fmt.Errorf("send close: %w", err)
	}
	msg, err := expect(conn, "session_closed")
	if err != nil {
		return err
	}

	var doc struct {
		SessionID      string         `json:"sessionId"`
		TotalScore     float64        `json:"totalScore"`
		EmotionSummary map[string]int `json:"emotionSummary"`
		Data           []any          `json:"data"`
	}
	if err := json.Unmarshal(msg.Data, &doc); err != nil {
		return fmt.Errorf("decode closed session: %w", err)
	}
	log.Printf("会话结束: id=%s events=%d total=%.2f summary=%v", doc.SessionID, len(doc.Data), doc.TotalScore, doc.EmotionSummary)
	return nil
}

// expect 读取消息直到出现指定类型，期间的失败通知只记录日志。
func expect(conn *websocket.Conn, want string) (message, error) {
	for {
		var msg message
		if err := conn.ReadJSON(&msg); err != nil {
			return message{}, fmt.Errorf("waiting for %s: %w", want, err)
		}
		switch msg.Type {
		case want:
			return msg, nil
		case "error":
			return message{}, fmt.Errorf("server error: %s", string(msg.Data))
		case "sync_failed":
			log.Printf("[WARN] 远端同步失败: %s", string(msg.Data))
		default:
			log.Printf("忽略消息: type=%s", msg.Type)
		}
	}
}

func syntheticEvents(n int, convention emotion.Convention) string {
	labels := emotion.Labels()
	var b strings.Builder
	start := time.Now()
	for i := 0; i < n; i++ {
		label := labels[rand.Intn(len(labels))]
		line, _ := json.Marshal(map[string]any{
			"emotion":   label,
			"score":     convention.FromCanonical(emotion.Polarity(label)),
			"timestamp": start.Add(time.Duration(i) * time.Second).UnixMilli(),
		})
		b.Write(line)
		b.WriteByte('\n')
	}
	return b.String()
}
