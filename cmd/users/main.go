// ユーザーアカウントサービスのエントリポイント。
// ユーザー登録・ログイン・プロフィール管理を担当する。
package main

import (
	"log"
	"os"

	"github.com/nao1215/orderhub/internal/users"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8001"
	}

	server, err := users.NewServer(port)
	if err != nil {
		log.Fatalf("Usersサーバーの初期化に失敗: %v", err)
	}

	log.Printf("Usersサービスを起動します: :%s", port)
	if err := server.Run(); err != nil {
		log.Fatalf("Usersサービスの起動に失敗: %v", err)
	}
}
