package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/report-console/internal/models"
)

// CheckConfig refreshes the API-key flag. Any failure counts as not
// configured.
func (o *orchestrator) CheckConfig(ctx context.Context) error {
	status, err := o.backend.ConfigStatus(ctx)
	if err != nil {
		o.logger.Warn("⚠️  failed to check API status", zap.Error(err))
		o.app.SetAPIConfigured(false)
		return err
	}
	o.app.SetAPIConfigured(status.Configured)
	return nil
}

func (o *orchestrator) ValidateKey(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		o.app.Notify(models.LevelWarning, "请输入API密钥")
		return &ValidationError{Message: "请输入API密钥"}
	}

	validation, err := o.backend.ValidateKey(ctx, apiKey)
	if err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			o.app.Notify(models.LevelDanger, "验证失败，请检查网络连接")
		} else {
			o.app.Notify(models.LevelDanger, NoticeMessage(err))
		}
		return err
	}
	if !validation.Valid {
		message := orDefault(validation.Error, "密钥验证失败")
		o.app.Notify(models.LevelDanger, message)
		return &ApplicationError{Endpoint: EndpointConfigValidate, Message: message}
	}

	o.app.Notify(models.LevelSuccess, "API密钥验证成功！")
	return nil
}

func (o *orchestrator) SaveKey(ctx context.Context, apiKey string) error {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		o.app.Notify(models.LevelWarning, "请输入API密钥")
		return &ValidationError{Message: "请输入API密钥"}
	}

	if err := o.backend.SaveKey(ctx, apiKey); err != nil {
		var netErr *NetworkError
		if errors.As(err, &netErr) {
			o.app.Notify(models.LevelDanger, "保存失败，请检查网络连接")
		} else {
			o.app.Notify(models.LevelDanger, NoticeMessage(err))
		}
		return err
	}

	o.app.SetAPIConfigured(true)
	o.app.Notify(models.LevelSuccess, "API密钥保存成功！")
	return nil
}

// Upload validates file locally, sends it to the backend and records the
// reference in slot. Local validation is advisory and never blocks.
func (o *orchestrator) Upload(ctx context.Context, slot models.SlotName, file LocalFile) (models.UploadSlot, error) {
	if !slot.Accepts(file.Name) {
		o.app.Notify(models.LevelWarning, fmt.Sprintf("%s 的文件类型可能不匹配，建议上传 %s 格式",
			file.Name, strings.Join(slot.AcceptedExtensions(), "、")))
	}

	var validation *models.ValidationResult
	if o.validator != nil {
		validation = o.validator.Validate(ctx, slot, file)
	}

	token, err := o.app.BeginUpload(slot, file.Name)
	if err != nil {
		return models.UploadSlot{}, err
	}

	reference, err := o.backend.Upload(ctx, file)
	if err != nil {
		o.metrics.IncUpload(string(slot), "error")
		if !o.app.FailUpload(token, err) {
			o.logger.Info("discarding stale upload failure", zap.String("slot", string(slot)), zap.String("file", file.Name))
			return o.app.Slot(slot), err
		}
		prefix := "上传错误: "
		if IsApplicationError(err) {
			prefix = "上传失败: "
		}
		o.app.Notify(models.LevelDanger, prefix+NoticeMessage(err))
		return o.app.Slot(slot), err
	}

	if !o.app.CompleteUpload(token, reference, file.Name, validation) {
		o.metrics.IncUpload(string(slot), "stale")
		o.logger.Info("discarding stale upload completion",
			zap.String("slot", string(slot)),
			zap.String("file", file.Name),
			zap.String("file_path", reference),
		)
		return o.app.Slot(slot), nil
	}
	o.metrics.IncUpload(string(slot), "success")
	o.logger.Info("📤 file uploaded", zap.String("slot", string(slot)), zap.String("file", file.Name))

	o.notifyUploaded(slot, file, validation)
	return o.app.Slot(slot), nil
}

func (o *orchestrator) notifyUploaded(slot models.SlotName, file LocalFile, validation *models.ValidationResult) {
	switch slot {
	case models.SlotJudgeScore:
		o.app.Notify(models.LevelSuccess, "评委打分结果上传成功")
	case models.SlotDoc:
		if file.Ext() == ".pdf" {
			o.app.Notify(models.LevelSuccess, "PDF文件上传成功")
		} else {
			o.app.Notify(models.LevelSuccess, "述职文档上传成功")
		}
	case models.SlotAudio:
		if o.validator != nil {
			notice := o.validator.CheckAudioUpload(file)
			o.app.Notify(notice.Level, notice.Message)
		}
	default:
		o.app.Notify(models.LevelSuccess, file.Name+" 上传成功")
	}

	if validation != nil && !validation.Valid {
		o.app.Notify(models.LevelWarning, validation.Message)
	}
}

func (o *orchestrator) ParseDocument(ctx context.Context, docPath string) error {
	text, err := o.backend.ParseDocument(ctx, docPath)
	if err != nil {
		o.app.Notify(models.LevelDanger, "文档解析失败: "+NoticeMessage(err))
		return err
	}
	o.app.SetDocText(text)
	o.app.Notify(models.LevelSuccess, "文档解析成功！")
	return nil
}

func (o *orchestrator) ParseScore(ctx context.Context, scorePath string) error {
	items, err := o.backend.ParseScore(ctx, scorePath)
	if err != nil {
		o.app.Notify(models.LevelDanger, "评分表解析失败: "+NoticeMessage(err))
		return err
	}
	o.app.SetScoreItems(items)
	o.app.Notify(models.LevelSuccess, "评分表解析成功！")
	return nil
}
