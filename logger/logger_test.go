package logger_test

import (
	"bytes"
	"encoding/json"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
	"github.com/relloyd/stagesync/logger"
	"github.com/sirupsen/logrus"
)

var _ = Describe("Logger", func() {
	l := logger.NewLogger("test-service", "debug", true)
	l.SetFormatter(&logrus.JSONFormatter{})

	capture := func(fn func()) map[string]interface{} {
		logOutput := bytes.NewBufferString("")
		l.SetOutput(logOutput)
		fn()
		var actual map[string]interface{}
		_ = json.Unmarshal(logOutput.Bytes(), &actual)
		return actual
	}

	It("Should have `test-service` as service name", func() {
		actual := capture(func() { l.Info("Testing") })
		Expect(actual["service"]).To(Equal("test-service"))
		Expect(actual["msg"]).To(Equal("Testing"))
	})

	It("Should have info as log level", func() {
		actual := capture(func() { l.Info("Testing") })
		Expect(actual["level"]).To(Equal("info"))
	})

	It("Should have warn as log level", func() {
		actual := capture(func() { l.Warn("Testing") })
		Expect(actual["level"]).To(Equal("warning"))
	})

	It("Should have error as log level with a stack trace", func() {
		actual := capture(func() { l.Error("Testing") })
		Expect(actual["level"]).To(Equal("error"))
		Expect(actual["stackTrace"]).ToNot(BeNil())
	})

	It("Should add entity and run fields", func() {
		scoped := logger.WithFields(l, logger.Fields{"entity": "Schedule", "runId": "abc"})
		actual := capture(func() { scoped.Info("Testing") })
		Expect(actual["entity"]).To(Equal("Schedule"))
		Expect(actual["runId"]).To(Equal("abc"))
		Expect(actual["service"]).To(Equal("test-service"))
	})

	It("Should leave unknown loggers unchanged", func() {
		var custom logger.Logger = &silent{}
		Expect(logger.WithFields(custom, logger.Fields{"a": 1})).To(BeIdenticalTo(custom))
	})
})

type silent struct{}

func (s *silent) Trace(...interface{}) {}
func (s *silent) Debug(...interface{}) {}
func (s *silent) Info(...interface{})  {}
func (s *silent) Warn(...interface{})  {}
func (s *silent) Error(...interface{}) {}
func (s *silent) Panic(...interface{}) {}
func (s *silent) Fatal(...interface{}) {}
