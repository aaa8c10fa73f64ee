package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/forest6511/acctvault/pkg/service"
	"github.com/forest6511/acctvault/pkg/vault"
)

var errBadRequest = errors.New("httpapi: bad request")

type loginRequest struct {
	Password string `json:"password"`
}

type batchImportRequest struct {
	Accounts []vault.Input `json:"accounts"`
}

type batchImportResponse struct {
	SuccessCount int `json:"success_count"`
	FailedCount  int `json:"failed_count"`
}

type importTextRequest struct {
	Text string `json:"text"`
}

type totpRequest struct {
	Secret string `json:"secret"`
}

type backupRequest struct {
	Reason string `json:"reason"`
}

type backupNameRequest struct {
	BackupName string `json:"backup_name"`
}

func bind(c echo.Context, v any) error {
	if err := c.Bind(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathID(c echo.Context) (int64, error) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid account id %q", errBadRequest, c.Param("id"))
	}
	return id, nil
}

func (s *Server) login(c echo.Context) error {
	var req loginRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	return ok(c, s.svc.Login(req.Password), "")
}

func (s *Server) check(c echo.Context) error {
	return ok(c, s.svc.Check(bearerToken(c)), "")
}

func (s *Server) logout(c echo.Context) error {
	if err := s.svc.Logout(bearerToken(c)); err != nil {
		return err
	}
	return ok(c, nil, "logged out")
}

func (s *Server) listAccounts(c echo.Context) error {
	f := vault.Filter{Search: c.QueryParam("search"), SoldStatus: c.QueryParam("sold_status")}
	accounts, err := s.svc.ListAccounts(c.Request().Context(), bearerToken(c), f)
	if err != nil {
		return err
	}
	return ok(c, accounts, "")
}

func (s *Server) getAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := s.svc.GetAccount(c.Request().Context(), bearerToken(c), id)
	if err != nil {
		return err
	}
	return ok(c, a, "")
}

func (s *Server) createAccount(c echo.Context) error {
	var in vault.Input
	if err := bind(c, &in); err != nil {
		return err
	}
	a, err := s.svc.CreateAccount(c.Request().Context(), bearerToken(c), in)
	if err != nil {
		return err
	}
	return ok(c, a, "account created")
}

func (s *Server) updateAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	var in vault.Input
	if err := bind(c, &in); err != nil {
		return err
	}
	a, err := s.svc.UpdateAccount(c.Request().Context(), bearerToken(c), id, in)
	if err != nil {
		return err
	}
	return ok(c, a, "account updated")
}

func (s *Server) deleteAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.DeleteAccount(c.Request().Context(), bearerToken(c), id); err != nil {
		return err
	}
	return ok(c, nil, "account deleted")
}

func (s *Server) deleteAll(c echo.Context) error {
	n, err := s.svc.DeleteAllAccounts(c.Request().Context(), bearerToken(c))
	if err != nil {
		return err
	}
	return ok(c, n, "all accounts deleted")
}

func (s *Server) listDeleted(c echo.Context) error {
	accounts, err := s.svc.ListDeleted(c.Request().Context(), bearerToken(c))
	if err != nil {
		return err
	}
	return ok(c, accounts, "")
}

func (s *Server) restoreAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := s.svc.RestoreAccount(c.Request().Context(), bearerToken(c), id)
	if err != nil {
		return err
	}
	return ok(c, a, "account restored")
}

func (s *Server) purgeAccount(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	if err := s.svc.PurgeAccount(c.Request().Context(), bearerToken(c), id); err != nil {
		return err
	}
	return ok(c, nil, "account permanently deleted")
}

func (s *Server) purgeAll(c echo.Context) error {
	n, err := s.svc.PurgeAllDeleted(c.Request().Context(), bearerToken(c))
	if err != nil {
		return err
	}
	return ok(c, n, "trash emptied")
}

func (s *Server) toggleStatus(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := s.svc.ToggleStatus(c.Request().Context(), bearerToken(c), id)
	if err != nil {
		return err
	}
	return ok(c, a, "")
}

func (s *Server) toggleSold(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	a, err := s.svc.ToggleSoldStatus(c.Request().Context(), bearerToken(c), id)
	if err != nil {
		return err
	}
	return ok(c, a, "")
}

func (s *Server) history(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	h, err := s.svc.History(c.Request().Context(), bearerToken(c), id)
	if err != nil {
		return err
	}
	return ok(c, h, "")
}

func (s *Server) batchImport(c echo.Context) error {
	var req batchImportRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.svc.BatchImport(c.Request().Context(), bearerToken(c), req.Accounts)
	if err != nil {
		return err
	}
	return ok(c, batchImportResponse{SuccessCount: res.Imported, FailedCount: res.Failed}, "batch import finished")
}

func (s *Server) importText(c echo.Context) error {
	var req importTextRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	res, err := s.svc.ImportText(c.Request().Context(), bearerToken(c), req.Text)
	if err != nil {
		return err
	}
	return ok(c, res, "import finished")
}

func (s *Server) generateTOTP(c echo.Context) error {
	var req totpRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	code, err := s.svc.GenerateTOTP(c.Request().Context(), bearerToken(c), req.Secret)
	if err != nil {
		return err
	}
	return ok(c, code, "")
}

func (s *Server) accountTOTP(c echo.Context) error {
	id, err := pathID(c)
	if err != nil {
		return err
	}
	code, err := s.svc.AccountTOTP(c.Request().Context(), bearerToken(c), id)
	if err != nil {
		return err
	}
	return ok(c, code, "")
}

func (s *Server) listBackups(c echo.Context) error {
	list, err := s.svc.ListBackups(c.Request().Context(), bearerToken(c))
	if err != nil {
		return err
	}
	return ok(c, list, "")
}

func (s *Server) createBackup(c echo.Context) error {
	var req backupRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	info, err := s.svc.CreateBackup(c.Request().Context(), bearerToken(c), req.Reason)
	if err != nil {
		return err
	}
	return ok(c, info, "backup created")
}

func (s *Server) restoreBackup(c echo.Context) error {
	var req backupNameRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	safety, err := s.svc.RestoreBackup(c.Request().Context(), bearerToken(c), req.BackupName)
	if err != nil {
		return err
	}
	return ok(c, safety, "backup restored")
}

func (s *Server) uploadBackup(c echo.Context) error {
	var req backupNameRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	loc, err := s.svc.UploadBackup(c.Request().Context(), bearerToken(c), req.BackupName)
	if err != nil {
		return err
	}
	return ok(c, loc, "backup uploaded")
}

func (s *Server) exportText(c echo.Context) error {
	var req service.ExportRequest
	if err := bind(c, &req); err != nil {
		return err
	}
	out, err := s.svc.ExportText(c.Request().Context(), bearerToken(c), req)
	if err != nil {
		return err
	}
	return ok(c, out, "")
}

func (s *Server) exportSQL(c echo.Context) error {
	token := bearerToken(c)
	// Buffered so a failure still gets a JSON error body.
	var buf bytes.Buffer
	if err := s.svc.ExportSQL(c.Request().Context(), token, &buf); err != nil {
		return err
	}
	c.Response().Header().Set(echo.HeaderContentDisposition, `attachment; filename="accounts.sql"`)
	return c.Blob(http.StatusOK, "application/sql; charset=utf-8", buf.Bytes())
}

func (s *Server) securityReport(c echo.Context) error {
	score, err := s.svc.SecurityReport(c.Request().Context(), bearerToken(c))
	if err != nil {
		return err
	}
	return ok(c, score, "")
}

func (s *Server) verifyAudit(c echo.Context) error {
	res, err := s.svc.VerifyAudit(c.Request().Context(), bearerToken(c))
	if err != nil {
		return err
	}
	return ok(c, res, "")
}
