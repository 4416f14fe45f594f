package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"callaudit/internal/orchestrator"
	"callaudit/internal/reference"
	"callaudit/internal/types"
)

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "submit")

	var spec orchestrator.Spec
	if err := decodeBody(r, &spec); err != nil {
		reqLog.WithError(err).Warn("bad submit body")
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	reqLog = reqLog.WithField("file_name", spec.FileName)
	reqLog.Info("submit received")

	res, err := s.orch.RunJob(r.Context(), spec)
	if err != nil {
		reqLog.WithError(err).Warn("submit failed")
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	if spec.Background {
		s.writeJSON(w, http.StatusOK, map[string]any{
			"status":  true,
			"message": "Request received, processing in background",
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":           true,
		"message":          "Process completed successfully",
		"completed_checks": res.Summary,
		"transcript":       res.Transcript,
	})
}

func (s *Server) handleTranscribe(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "transcribe")

	var req struct {
		URL      string `json:"url"`
		Language *bool  `json:"language"`
		CallType string `json:"call_type"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.URL == "" {
		s.writeError(w, http.StatusBadRequest, "URL parameter is required")
		return
	}
	if req.CallType == "" {
		s.writeError(w, http.StatusBadRequest, "call type parameter is required")
		return
	}
	language := true
	if req.Language != nil {
		language = *req.Language
	}

	prompt, err := s.ref.Prompt(reference.PromptTranscribe, req.CallType)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	lines, err := s.transcriber.Transcribe(r.Context(), req.URL, language, prompt)
	if err != nil {
		reqLog.WithError(err).Warn("transcription failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        true,
		"transcription": lines,
	})
}

func (s *Server) handleRestructure(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "restructure")

	var req struct {
		Transcript []types.TranscriptLine `json:"transcript"`
		CallType   string                 `json:"call_type"`
		FileName   string                 `json:"file_name"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.FileName == "" {
		s.writeError(w, http.StatusBadRequest, "File name is missing or empty.")
		return
	}
	if len(req.Transcript) == 0 {
		s.writeError(w, http.StatusBadRequest, "Transcript data is missing or empty.")
		return
	}
	if req.CallType == "" {
		s.writeError(w, http.StatusBadRequest, "Call type is missing or empty.")
		return
	}

	prompt, err := s.ref.Prompt(reference.PromptRestructure, req.CallType)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	labeled, err := s.scheduler.Run(r.Context(), prompt, req.Transcript)
	if err != nil {
		reqLog.WithError(err).Warn("restructure failed")
		s.recordJobError(r, req.FileName, err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.store.SaveTranscript(r.Context(), req.FileName, labeled); err != nil {
		reqLog.WithError(err).Error("failed to persist labeled transcript")
		s.recordJobError(r, req.FileName, err)
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": true})
}

func (s *Server) handleDetectVoicelog(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "detect_voicelog")

	var req struct {
		FileName string `json:"file_name"`
		CallType string `json:"call_type"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.FileName == "" {
		s.writeError(w, http.StatusBadRequest, "File name is missing or empty.")
		return
	}
	if req.CallType == "" {
		s.writeError(w, http.StatusBadRequest, "Call type is missing or empty.")
		return
	}

	job, err := s.store.GetJob(r.Context(), req.FileName)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil || len(job.Transcript) == 0 {
		s.writeError(w, http.StatusNotFound, "No transcript found for 'file_name' : "+req.FileName)
		return
	}

	prompt, err := s.ref.Prompt(reference.PromptFindVoicelogs, req.CallType)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	detection, err := s.detector.Detect(r.Context(), prompt, job.Transcript)
	if err != nil {
		reqLog.WithError(err).Warn("voicelog detection failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":            true,
		"voiceLogs":         detection.Candidates,
		"voicelog_response": detection.RawResponse,
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	reqLog := s.log.WithRequest(r).WithField("handler", "analyze")

	var req struct {
		FileName string `json:"file_name"`
		CallType string `json:"call_type"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.FileName == "" {
		s.writeError(w, http.StatusBadRequest, "File name is missing or empty.")
		return
	}
	if req.CallType == "" {
		s.writeError(w, http.StatusBadRequest, "Call type is missing or empty.")
		return
	}

	prompt, err := s.ref.Prompt(reference.PromptRunAnalysis, req.CallType)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	requirements, err := s.ref.RequirementsFor(req.CallType)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	job, err := s.store.GetJob(r.Context(), req.FileName)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil || len(job.Transcript) == 0 {
		s.writeError(w, http.StatusNotFound, "No transcript data found.")
		return
	}

	tally, err := s.analyzer.Run(r.Context(), req.FileName, prompt, requirements, job.Transcript, job.VoicelogID)
	if err != nil {
		reqLog.WithError(err).Warn("analysis failed")
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, []types.ScoreSummary{tally})
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "file_name")
	job, err := s.store.GetJob(r.Context(), fileName)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if job == nil {
		s.writeError(w, http.StatusNotFound, "No job found for 'file_name' : "+fileName)
		return
	}
	s.writeJSON(w, http.StatusOK, job)
}

// recordJobError appends a stage error to the job's error log, best effort.
func (s *Server) recordJobError(r *http.Request, fileName string, stageErr error) {
	if err := s.store.AppendError(r.Context(), fileName, stageErr.Error()); err != nil {
		s.log.WithJob(fileName).WithError(err).Error("failed to record error on job")
	}
}
