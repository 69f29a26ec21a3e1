package processor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"testing"

	"talent-match-go/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockFileStore 内存文件存储
type mockFileStore struct {
	files      map[string][]byte
	parsedText map[string]string
	uploadErr  error
}

func newMockFileStore() *mockFileStore {
	return &mockFileStore{
		files:      make(map[string][]byte),
		parsedText: make(map[string]string),
	}
}

func (m *mockFileStore) GetCVFile(ctx context.Context, objectKey string) ([]byte, error) {
	data, ok := m.files[objectKey]
	if !ok {
		return nil, fmt.Errorf("对象不存在: %s", objectKey)
	}
	return data, nil
}

func (m *mockFileStore) UploadParsedText(ctx context.Context, uploadUUID string, text string) (string, error) {
	if m.uploadErr != nil {
		return "", m.uploadErr
	}
	key := fmt.Sprintf("cv/%s/parsed_text.txt", uploadUUID)
	m.parsedText[key] = text
	return key, nil
}

// mockUploadTracker 记录状态回写
type mockUploadTracker struct {
	updates   map[string]map[string]interface{}
	updateErr error
}

func newMockUploadTracker() *mockUploadTracker {
	return &mockUploadTracker{updates: make(map[string]map[string]interface{})}
}

func (m *mockUploadTracker) UpdateCVUploadFields(ctx context.Context, uploadUUID string, updates map[string]interface{}) error {
	if m.updateErr != nil {
		return m.updateErr
	}
	m.updates[uploadUUID] = updates
	return nil
}

// mockExtractor 假装提取PDF文本
type mockExtractor struct {
	text string
	err  error
}

func (m *mockExtractor) ExtractTextFromBytes(ctx context.Context, data []byte, uri string, options interface{}) (string, map[string]interface{}, error) {
	if m.err != nil {
		return "", nil, m.err
	}
	return m.text, map[string]interface{}{"text_length": len(m.text)}, nil
}

func testLogger() *log.Logger {
	return log.New(io.Discard, "", 0)
}

func TestNewCVProcessorValidation(t *testing.T) {
	files := newMockFileStore()
	uploads := newMockUploadTracker()
	extractor := &mockExtractor{}

	// 缺少任一依赖都应报错
	_, err := NewCVProcessor(nil, uploads, extractor)
	assert.Error(t, err)
	_, err = NewCVProcessor(files, nil, extractor)
	assert.Error(t, err)
	_, err = NewCVProcessor(files, uploads, nil)
	assert.Error(t, err)

	p, err := NewCVProcessor(files, uploads, extractor, WithProcessorLogger(testLogger()), WithExtractorVersion("test-v1"))
	require.NoError(t, err)
	assert.Equal(t, "test-v1", p.extractorVersion)
}

func TestProcessUploadPDF(t *testing.T) {
	files := newMockFileStore()
	files.files["cv/u-1/original.pdf"] = []byte("%PDF-1.4 fake")
	uploads := newMockUploadTracker()
	extractor := &mockExtractor{text: "张三 资深Go工程师"}

	p, err := NewCVProcessor(files, uploads, extractor, WithProcessorLogger(testLogger()))
	require.NoError(t, err)

	msg := &storage.CVUploadedMessage{
		UploadUUID:          "u-1",
		OriginalFilename:    "resume.pdf",
		OriginalFilePathOSS: "cv/u-1/original.pdf",
	}
	require.NoError(t, p.ProcessUpload(context.Background(), msg))

	// 提取文本应已保存
	assert.Equal(t, "张三 资深Go工程师", files.parsedText["cv/u-1/parsed_text.txt"])

	// 状态应回写为已提取
	update := uploads.updates["u-1"]
	require.NotNil(t, update)
	assert.Equal(t, StatusTextExtracted, update["processing_status"])
	assert.Equal(t, "cv/u-1/parsed_text.txt", update["parsed_text_path_oss"])
}

func TestProcessUploadPlainText(t *testing.T) {
	files := newMockFileStore()
	files.files["cv/u-2/original.txt"] = []byte("plain text resume")
	uploads := newMockUploadTracker()
	// 纯文本不应调用到PDF提取器
	extractor := &mockExtractor{err: fmt.Errorf("should not be called")}

	p, err := NewCVProcessor(files, uploads, extractor, WithProcessorLogger(testLogger()))
	require.NoError(t, err)

	msg := &storage.CVUploadedMessage{
		UploadUUID:          "u-2",
		OriginalFilename:    "resume.txt",
		OriginalFilePathOSS: "cv/u-2/original.txt",
	}
	require.NoError(t, p.ProcessUpload(context.Background(), msg))
	assert.Equal(t, "plain text resume", files.parsedText["cv/u-2/parsed_text.txt"])
}

func TestProcessUploadExtractionFailure(t *testing.T) {
	files := newMockFileStore()
	files.files["cv/u-3/original.pdf"] = []byte("broken")
	uploads := newMockUploadTracker()
	extractor := &mockExtractor{err: fmt.Errorf("corrupt pdf")}

	p, err := NewCVProcessor(files, uploads, extractor, WithProcessorLogger(testLogger()))
	require.NoError(t, err)

	msg := &storage.CVUploadedMessage{
		UploadUUID:          "u-3",
		OriginalFilename:    "resume.pdf",
		OriginalFilePathOSS: "cv/u-3/original.pdf",
	}
	err = p.ProcessUpload(context.Background(), msg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "corrupt pdf")
	assert.ErrorIs(t, err, ErrExtractionFailed)

	// 失败状态也应回写
	update := uploads.updates["u-3"]
	require.NotNil(t, update)
	assert.Equal(t, StatusExtractionFailed, update["processing_status"])
}

// 损坏文件的提取失败是终态, 消息应Ack丢弃而不是无限重投
func TestHandleMessageAcksTerminalExtractionFailure(t *testing.T) {
	files := newMockFileStore()
	files.files["cv/u-5/original.pdf"] = []byte("broken")
	uploads := newMockUploadTracker()
	extractor := &mockExtractor{err: fmt.Errorf("corrupt pdf")}

	p, err := NewCVProcessor(files, uploads, extractor, WithProcessorLogger(testLogger()))
	require.NoError(t, err)

	body, err := json.Marshal(storage.CVUploadedMessage{
		UploadUUID:          "u-5",
		OriginalFilename:    "resume.pdf",
		OriginalFilePathOSS: "cv/u-5/original.pdf",
	})
	require.NoError(t, err)

	assert.True(t, p.HandleMessage(body), "提取终态失败应Ack丢弃")
	update := uploads.updates["u-5"]
	require.NotNil(t, update)
	assert.Equal(t, StatusExtractionFailed, update["processing_status"])

	// 终态落库失败时保留消息, 等待重投后再记录
	uploads.updateErr = fmt.Errorf("mysql gone")
	assert.False(t, p.HandleMessage(body), "终态未落库应Nack重试")
}

func TestHandleMessage(t *testing.T) {
	files := newMockFileStore()
	files.files["cv/u-4/original.pdf"] = []byte("%PDF")
	uploads := newMockUploadTracker()
	extractor := &mockExtractor{text: "候选人简历内容"}

	p, err := NewCVProcessor(files, uploads, extractor, WithProcessorLogger(testLogger()))
	require.NoError(t, err)

	body, err := json.Marshal(storage.CVUploadedMessage{
		UploadUUID:          "u-4",
		OriginalFilename:    "resume.pdf",
		OriginalFilePathOSS: "cv/u-4/original.pdf",
	})
	require.NoError(t, err)

	assert.True(t, p.HandleMessage(body), "处理成功应Ack")

	// 非法JSON直接Ack丢弃
	assert.True(t, p.HandleMessage([]byte("not-json")), "非法消息应Ack丢弃")

	// 缺少字段的消息也直接丢弃
	emptyMsg, _ := json.Marshal(storage.CVUploadedMessage{})
	assert.True(t, p.HandleMessage(emptyMsg))

	// 文件不存在时应Nack重试
	missing, _ := json.Marshal(storage.CVUploadedMessage{
		UploadUUID:          "u-missing",
		OriginalFilename:    "resume.pdf",
		OriginalFilePathOSS: "cv/u-missing/original.pdf",
	})
	assert.False(t, p.HandleMessage(missing), "文件缺失应Nack重试")
}
