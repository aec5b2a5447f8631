package main

import (
	"context"
	"log"

	"spapreview/cmd"
)

func main() {
	// 停止シグナルはサーバー側で処理する
	if err := cmd.Execute(context.Background()); err != nil {
		log.Fatalf("エラー: %v", err)
	}
}
