// 注文サービスのエントリポイント。
// 注文の作成・取得・ステータス管理を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/orderhub/internal/orders"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8002"
	}

	server, err := orders.NewServer(port)
	if err != nil {
		log.Fatalf("Ordersサーバーの初期化に失敗: %v", err)
	}

	log.Printf("Ordersサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("Ordersサービスの起動に失敗: %v", err)
	}
}
