package extraction

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage Storage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "out"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("should create the output directory", func() {
		Expect(filepath.Join(tmpDir, "out")).To(BeADirectory())
	})

	Describe("Save", func() {
		It("should write the file and return its name", func() {
			name, err := storage.Save("a.json", []byte("[]"))
			Expect(err).NotTo(HaveOccurred())
			Expect(name).To(Equal("a.json"))
			Expect(filepath.Join(tmpDir, "out", "a.json")).To(BeAnExistingFile())
		})

		It("should overwrite an existing file", func() {
			_, err := storage.Save("a.json", []byte("old"))
			Expect(err).NotTo(HaveOccurred())
			_, err = storage.Save("a.json", []byte("new"))
			Expect(err).NotTo(HaveOccurred())
			data, err := storage.Get("a.json")
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("new"))
		})

		It("should not escape the output directory", func() {
			_, err := storage.Save("../escape.json", []byte("{}"))
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(tmpDir, "escape.json")).NotTo(BeAnExistingFile())
			Expect(filepath.Join(tmpDir, "out", "escape.json")).To(BeAnExistingFile())
		})
	})

	Describe("Get", func() {
		When("file does not exist", func() {
			It("should return an error", func() {
				_, err := storage.Get("missing.json")
				Expect(err).To(MatchError(ContainSubstring("reading file")))
			})
		})
	})

	Describe("Delete", func() {
		It("should remove the file", func() {
			_, err := storage.Save("a.json", []byte("[]"))
			Expect(err).NotTo(HaveOccurred())
			Expect(storage.Delete("a.json")).To(Succeed())
			_, statErr := os.Stat(filepath.Join(tmpDir, "out", "a.json"))
			Expect(os.IsNotExist(statErr)).To(BeTrue())
		})

		When("file does not exist", func() {
			It("should return an error", func() {
				Expect(storage.Delete("missing.json")).To(MatchError(ContainSubstring("deleting file")))
			})
		})
	})

	Describe("Path", func() {
		It("should join the name onto the output directory", func() {
			Expect(storage.Path("invoices_summary.csv")).To(Equal(filepath.Join(tmpDir, "out", "invoices_summary.csv")))
		})
	})
})
