package actions

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/relloyd/stagesync/logger"
	"github.com/relloyd/stagesync/stats"
)

type WebServerResponse uint32

const (
	Okay WebServerResponse = iota + 1
	Error
)

func (w WebServerResponse) MarshalJSON() ([]byte, error) {
	var retval string
	switch w {
	case Okay:
		retval = "ok"
	case Error:
		retval = "error"
	default:
		err := fmt.Errorf("unhandled WebServerResponse value in MarshalJSON() conversion")
		return nil, err
	}
	return json.Marshal(retval)
}

type ResponseSimple struct {
	ServerStatus WebServerResponse `json:"status"`
	Message      string            `json:"message,omitempty"`
}

type ResponseStatus struct {
	Status  WebServerResponse        `json:"status"`
	Running map[string][]stats.Stats `json:"running"`
	LastRun *RunSummary              `json:"lastRun,omitempty"`
}

// RunSummary is the short form of a RunReport.
type RunSummary struct {
	RunID     string    `json:"runId"`
	Finished  time.Time `json:"finished"`
	Succeeded bool      `json:"succeeded"`
	Error     string    `json:"error,omitempty"`
}

type ResponseRun struct {
	Status  WebServerResponse `json:"status"`
	Message string            `json:"message,omitempty"`
	Run     *RunReport        `json:"run,omitempty"`
}

// RequestTrigger is the optional body of a trigger. No entities means every enabled entity.
type RequestTrigger struct {
	Entities []string `json:"entities"`
}

func GetHandlerHealth(log logger.Logger) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseSimple{ServerStatus: Okay})
	}
}

func GetHandlerStatus(log logger.Logger, s *Synchronizer) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := ResponseStatus{Status: Okay, Running: s.Running()}
		if last := s.LastRun(); last != nil {
			resp.LastRun = &RunSummary{RunID: last.RunID, Finished: last.Finished, Succeeded: last.Succeeded(), Error: last.Error}
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, resp)
	}
}

func GetHandlerLastRun(log logger.Logger, s *Synchronizer) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		last := s.LastRun()
		if last == nil {
			w.WriteHeader(http.StatusNotFound)
			respond(log, w, ResponseRun{Status: Error, Message: "no run has finished yet"})
			return
		}
		w.WriteHeader(http.StatusOK)
		respond(log, w, ResponseRun{Status: Okay, Run: last})
	}
}

// GetHandlerTrigger starts a run in the background. A trigger for entities that are already
// running joins that run.
func GetHandlerTrigger(ctx context.Context, log logger.Logger, s *Synchronizer, wg *sync.WaitGroup) func(w http.ResponseWriter, r *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		req := RequestTrigger{}
		b, err := io.ReadAll(r.Body)
		if err != nil {
			logAndRespond(log, err, w, ResponseSimple{ServerStatus: Error, Message: fmt.Sprintf("error reading request: %v", err)})
			return
		}
		if len(b) > 0 {
			if err := json.Unmarshal(b, &req); err != nil {
				logAndRespond(log, err, w, ResponseSimple{ServerStatus: Error, Message: fmt.Sprintf("error unmarshalling JSON: %v", err)})
				return
			}
		}
		if _, err := s.selectEntities(req.Entities); err != nil {
			logAndRespond(log, err, w, ResponseSimple{ServerStatus: Error, Message: err.Error()})
			return
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = s.Run(ctx, req.Entities...)
		}()
		log.Info("Run triggered over HTTP")
		w.WriteHeader(http.StatusAccepted)
		respond(log, w, ResponseSimple{ServerStatus: Okay, Message: "run started"})
	}
}

// logAndRespond will log the error, write a http.StatusBadRequest and r to w.
func logAndRespond(log logger.Logger, err error, w http.ResponseWriter, r interface{}) {
	log.Error(err)
	w.WriteHeader(http.StatusBadRequest)
	respond(log, w, r)
}

// respond will marshal i to a string and write it to w.
func respond(log logger.Logger, w http.ResponseWriter, i interface{}) {
	j, err := json.MarshalIndent(i, "", "  ")
	if err != nil {
		log.Error(err)
		return
	}
	if _, err = fmt.Fprint(w, string(j)); err != nil {
		log.Error(err)
	}
}
