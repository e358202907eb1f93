package logger_test

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/angeloszaimis/failover/pkg/logger"
)

var _ = Describe("Logger", func() {
	Describe("New", func() {
		It("should create a logger", func() {
			Expect(logger.New("info", false, "dev")).NotTo(BeNil())
		})

		It("should support addSource option", func() {
			Expect(logger.New("info", true, "dev")).NotTo(BeNil())
		})
	})

	DescribeTable("level filtering",
		func(level string, enabled, disabled slog.Level) {
			log := logger.New(level, false, "dev")
			Expect(log.Enabled(context.Background(), enabled)).To(BeTrue())
			Expect(log.Enabled(context.Background(), disabled)).To(BeFalse())
		},
		Entry("info", "info", slog.LevelInfo, slog.LevelDebug),
		Entry("warn", "warn", slog.LevelWarn, slog.LevelInfo),
		Entry("error", "error", slog.LevelError, slog.LevelWarn),
		Entry("unknown defaults to info", "invalid", slog.LevelInfo, slog.LevelDebug),
		Entry("case insensitive", "WARN", slog.LevelWarn, slog.LevelInfo),
	)

	It("should enable debug level", func() {
		log := logger.New("debug", false, "dev")
		Expect(log.Enabled(context.Background(), slog.LevelDebug)).To(BeTrue())
	})

	Describe("NewWithWriter", func() {
		It("should write JSON with the environment in prod", func() {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "info", false, "prod")
			log.Info("Endpoint blacklisted", slog.String("endpoint", "consul-a:8500"))

			var record map[string]any
			Expect(json.Unmarshal(buf.Bytes(), &record)).To(Succeed())
			Expect(record).To(HaveKeyWithValue("environment", "prod"))
			Expect(record).To(HaveKeyWithValue("endpoint", "consul-a:8500"))
			Expect(record).To(HaveKeyWithValue("msg", "Endpoint blacklisted"))
		})

		It("should write text outside prod", func() {
			var buf bytes.Buffer
			log := logger.NewWithWriter(&buf, "info", false, "staging")
			log.Info("Failing over")

			Expect(buf.String()).To(ContainSubstring("msg=\"Failing over\""))
			Expect(buf.String()).To(ContainSubstring("environment=staging"))
		})
	})
})
