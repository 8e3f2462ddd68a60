package main

import (
	"log"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"

	"github.com/LJTian/MarketEye/internal/collector"
	"github.com/LJTian/MarketEye/internal/config"
	"github.com/LJTian/MarketEye/internal/pricecache"
)

// 本地韩股日线缓存服务：sqlite 存储，缺数据时回源 Yahoo
func main() {
	cfg := config.Load()

	if err := os.MkdirAll(filepath.Dir(cfg.PriceCacheDB), 0o755); err != nil {
		log.Fatalf("create data dir failed: %v", err)
	}
	store, err := pricecache.OpenStore(cfg.PriceCacheDB)
	if err != nil {
		log.Fatalf("open price cache db failed: %v", err)
	}
	defer store.Close()

	yahoo := collector.NewYahooClient().WithHostOverride(cfg.YahooHost)
	svc := pricecache.NewService(store, yahoo, pricecache.KRXCalendar())

	r := gin.Default()
	pricecache.NewHandler(svc).RegisterRoutes(r)

	addr := "127.0.0.1:" + cfg.PriceCachePort
	log.Printf("starting price cache at %s (db=%s) ...", addr, cfg.PriceCacheDB)
	if err := r.Run(addr); err != nil {
		log.Fatalf("server exit: %v", err)
	}
}
