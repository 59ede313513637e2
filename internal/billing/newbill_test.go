package billing

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/billed/internal/bill"
	"github.com/zombor/billed/internal/scanning"
	"github.com/zombor/billed/internal/session"
	"github.com/zombor/billed/internal/store"
)

var _ = Describe("NewBillFlow", func() {
	var (
		ctx       context.Context
		st        *mockStore
		sess      session.Static
		navigator *mockNavigator
		scanner   *mockScanner
		flow      *NewBillFlow
		form      Form
	)

	BeforeEach(func() {
		ctx = context.Background()
		st = newMockStore()
		sess = session.Static{Current: bill.User{Type: bill.UserEmployee, Email: "a@a"}}
		navigator = &mockNavigator{}
		scanner = nil
		form = Form{
			Type:       "Transports",
			Name:       "test",
			Date:       "2021-09-01",
			Amount:     "30",
			VAT:        "10",
			Pct:        "20",
			Commentary: "test text for commentary",
		}
	})

	JustBeforeEach(func() {
		if scanner != nil {
			flow = StartNewBill(st, sess, navigator, scanner)
		} else {
			flow = StartNewBill(st, sess, navigator, nil)
		}
	})

	It("should start in the editing state", func() {
		Expect(flow.State()).To(Equal(StateEditing))
	})

	Describe("ChangeFile", func() {
		var (
			file   store.File
			status FileStatus
		)

		BeforeEach(func() {
			file = store.File{Name: "valid.png", Data: []byte("image"), ContentType: "image/png"}
		})

		JustBeforeEach(func() {
			status = flow.ChangeFile(ctx, file)
		})

		When("the file has an invalid extension", func() {
			BeforeEach(func() {
				file = store.File{Name: "invalid.exe", Data: []byte("MZ")}
			})

			It("should mark the file invalid", func() {
				Expect(status).To(Equal(FileInvalid))
			})

			It("should clear the input and show the error indicator", func() {
				view := flow.View()
				Expect(view.FileInput).To(BeEmpty())
				Expect(view.FileError).To(BeTrue())
			})

			It("should never call Create", func() {
				Expect(st.createCount()).To(Equal(0))
			})

			It("should stay in the editing state", func() {
				Expect(flow.State()).To(Equal(StateEditing))
			})
		})

		When("the file is valid", func() {
			It("should upload it", func() {
				Expect(status).To(Equal(FileUploaded))
				Expect(st.creates).To(HaveLen(1))
			})

			It("should send the file and the user's email", func() {
				Expect(st.creates[0].File).To(Equal(file))
				Expect(st.creates[0].Email).To(Equal("a@a"))
			})

			It("should keep the upload result", func() {
				Expect(flow.View().Upload).To(Equal(PendingUpload{
					FileURL:  "https://x/valid.png",
					FileName: "valid.png",
					Key:      "1234",
				}))
			})

			It("should return to the editing state with the indicator cleared", func() {
				Expect(flow.State()).To(Equal(StateEditing))
				Expect(flow.View().FileError).To(BeFalse())
				Expect(flow.View().FileInput).To(Equal("valid.png"))
			})
		})

		When("the content type is missing", func() {
			BeforeEach(func() {
				file = store.File{Name: "photo.JPEG", Data: []byte("image")}
			})

			It("should derive it from the extension", func() {
				Expect(st.creates[0].File.ContentType).To(Equal("image/jpeg"))
			})
		})

		When("a valid file follows an invalid one", func() {
			JustBeforeEach(func() {
				Expect(flow.ChangeFile(ctx, store.File{Name: "notes.txt"})).To(Equal(FileInvalid))
				status = flow.ChangeFile(ctx, file)
			})

			It("should clear the error indicator", func() {
				Expect(status).To(Equal(FileUploaded))
				Expect(flow.View().FileError).To(BeFalse())
			})
		})

		When("the upload fails", func() {
			BeforeEach(func() {
				st.createErr = store.NewError(500, "")
			})

			It("should report the failure", func() {
				Expect(status).To(Equal(FileUploadFailed))
				Expect(flow.View().UploadError).To(Equal("Erreur 500"))
			})

			It("should keep no upload state", func() {
				Expect(flow.View().Upload).To(Equal(PendingUpload{}))
				Expect(flow.View().FileInput).To(BeEmpty())
			})

			It("should stay in the editing state", func() {
				Expect(flow.State()).To(Equal(StateEditing))
			})

			It("should let the user retry", func() {
				st.createErr = nil
				Expect(flow.ChangeFile(ctx, file)).To(Equal(FileUploaded))
				Expect(flow.View().UploadError).To(BeEmpty())
			})
		})

		When("the store returns no file url", func() {
			BeforeEach(func() {
				st.upload = &store.Upload{FileURL: "", Key: "k"}
			})

			It("should report the failure", func() {
				Expect(status).To(Equal(FileUploadFailed))
				Expect(flow.View().UploadError).To(Equal(ErrIncompleteUpload.Error()))
			})

			It("should keep no upload state", func() {
				Expect(flow.View().Upload).To(Equal(PendingUpload{}))
				Expect(flow.State()).To(Equal(StateEditing))
			})

			It("should submit neither the file name nor the url", func() {
				Expect(flow.Submit(ctx, form)).To(Succeed())
				Expect(st.updates[0].Data.FileURL).To(BeEmpty())
				Expect(st.updates[0].Data.FileName).To(BeEmpty())
			})
		})

		When("no store is configured", func() {
			JustBeforeEach(func() {
				flow = StartNewBill(nil, sess, navigator, nil)
				status = flow.ChangeFile(ctx, file)
			})

			It("should report the failure", func() {
				Expect(status).To(Equal(FileUploadFailed))
				Expect(flow.View().UploadError).To(Equal(ErrNoStore.Error()))
			})
		})

		When("a scanner is configured", func() {
			BeforeEach(func() {
				scanner = &mockScanner{data: &scanning.ReceiptData{
					Name:   "SNCF",
					Type:   "Transports",
					Date:   "2024-01-15",
					Amount: 42,
					VAT:    "7",
				}}
			})

			It("should scan the uploaded receipt", func() {
				Expect(scanner.calls).To(Equal(1))
			})

			It("should prefill the empty form fields", func() {
				Expect(flow.View().Form).To(Equal(Form{
					Name:   "SNCF",
					Type:   "Transports",
					Date:   "2024-01-15",
					Amount: "42",
					VAT:    "7",
				}))
			})
		})

		When("the scanner fails", func() {
			BeforeEach(func() {
				scanner = &mockScanner{scanErr: errors.New("scan error")}
			})

			It("should still report the upload", func() {
				Expect(status).To(Equal(FileUploaded))
				Expect(flow.View().Form).To(Equal(Form{}))
			})
		})
	})

	Describe("overlapping uploads", func() {
		It("should refuse a second upload while one is in flight", func() {
			st.createStarted = make(chan struct{})
			st.createRelease = make(chan struct{})
			file := store.File{Name: "valid.png", Data: []byte("image")}

			done := make(chan FileStatus)
			go func() {
				defer GinkgoRecover()
				done <- flow.ChangeFile(ctx, file)
			}()

			Eventually(st.createStarted).Should(BeClosed())
			Expect(flow.State()).To(Equal(StateUploading))
			Expect(flow.ChangeFile(ctx, file)).To(Equal(FileBusy))

			close(st.createRelease)
			Eventually(done).Should(Receive(Equal(FileUploaded)))
			Expect(st.createCount()).To(Equal(1))
		})
	})

	Describe("an upload overlapping a submission", func() {
		var (
			file       store.File
			uploadDone chan FileStatus
		)

		BeforeEach(func() {
			file = store.File{Name: "valid.png", Data: []byte("image")}
			st.createStarted = make(chan struct{})
			st.createRelease = make(chan struct{})
			st.updateStarted = make(chan struct{})
			st.updateRelease = make(chan struct{})
		})

		JustBeforeEach(func() {
			uploadDone = make(chan FileStatus, 1)
			go func() {
				defer GinkgoRecover()
				uploadDone <- flow.ChangeFile(ctx, file)
			}()
			Eventually(st.createStarted).Should(BeClosed())
		})

		When("the upload completes before the submission fails", func() {
			BeforeEach(func() {
				st.updateErr = store.NewError(500, "Erreur 500")
			})

			It("should return to the editing state", func() {
				submitDone := make(chan error, 1)
				go func() {
					defer GinkgoRecover()
					submitDone <- flow.Submit(ctx, form)
				}()
				Eventually(st.updateStarted).Should(BeClosed())

				close(st.createRelease)
				Eventually(uploadDone).Should(Receive(Equal(FileUploaded)))
				Expect(flow.State()).To(Equal(StateSubmitting))

				close(st.updateRelease)
				Eventually(submitDone).Should(Receive(MatchError("Erreur 500")))
				Expect(flow.State()).To(Equal(StateEditing))
				Expect(flow.View().State.String()).To(Equal("editing"))
			})
		})

		When("the submission fails while the upload is still in flight", func() {
			BeforeEach(func() {
				st.updateErr = store.NewError(500, "Erreur 500")
				close(st.updateRelease)
			})

			It("should go back to uploading, then editing once the upload ends", func() {
				Expect(flow.Submit(ctx, form)).To(MatchError("Erreur 500"))
				Expect(flow.State()).To(Equal(StateUploading))

				close(st.createRelease)
				Eventually(uploadDone).Should(Receive(Equal(FileUploaded)))
				Expect(flow.State()).To(Equal(StateEditing))
			})
		})

		When("a submission is in flight", func() {
			It("should refuse a new upload and a second submission", func() {
				submitDone := make(chan error, 1)
				go func() {
					defer GinkgoRecover()
					submitDone <- flow.Submit(ctx, form)
				}()
				Eventually(st.updateStarted).Should(BeClosed())

				Expect(flow.ChangeFile(ctx, file)).To(Equal(FileBusy))
				Expect(flow.Submit(ctx, form)).To(MatchError(ErrSubmitting))
				Expect(flow.State()).To(Equal(StateSubmitting))

				close(st.createRelease)
				Eventually(uploadDone).Should(Receive(Equal(FileUploaded)))
				Expect(flow.State()).To(Equal(StateSubmitting))

				close(st.updateRelease)
				Eventually(submitDone).Should(Receive(BeNil()))
				Expect(flow.State()).To(Equal(StateSubmitted))
				Expect(st.updates).To(HaveLen(1))
			})
		})
	})

	Describe("Submit", func() {
		var err error

		When("a receipt was uploaded", func() {
			JustBeforeEach(func() {
				Expect(flow.ChangeFile(ctx, store.File{Name: "valid.png", Data: []byte("image")})).To(Equal(FileUploaded))
				err = flow.Submit(ctx, form)
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should update the record created by the upload", func() {
				Expect(st.updates).To(HaveLen(1))
				Expect(st.updates[0].ID).To(Equal("1234"))
				Expect(st.updates[0].Selector).To(Equal("1234"))
			})

			It("should send the uploaded file reference and a pending status", func() {
				data := st.updates[0].Data
				Expect(data.FileURL).To(Equal("https://x/valid.png"))
				Expect(data.FileName).To(Equal("valid.png"))
				Expect(data.Status).To(Equal(bill.StatusPending))
			})

			It("should send the form fields and the user's email", func() {
				Expect(st.updates[0].Data).To(Equal(bill.Bill{
					Email:      "a@a",
					Type:       bill.TypeTransport,
					Name:       "test",
					Amount:     30,
					Date:       "2021-09-01",
					VAT:        "10",
					Pct:        20,
					Commentary: "test text for commentary",
					FileURL:    "https://x/valid.png",
					FileName:   "valid.png",
					Status:     bill.StatusPending,
				}))
			})

			It("should be submitted and navigate to the bills list", func() {
				Expect(flow.State()).To(Equal(StateSubmitted))
				Expect(navigator.paths).To(Equal([]string{PathBills}))
			})

			It("should refuse a second submission", func() {
				Expect(flow.Submit(ctx, form)).To(MatchError(ErrSubmitted))
				Expect(st.updates).To(HaveLen(1))
			})

			It("should refuse further uploads", func() {
				Expect(flow.ChangeFile(ctx, store.File{Name: "other.png"})).To(Equal(FileBusy))
			})
		})

		When("no receipt was uploaded", func() {
			JustBeforeEach(func() {
				err = flow.Submit(ctx, form)
			})

			It("should still submit and let the store decide", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(st.updates).To(HaveLen(1))
				Expect(st.updates[0].Data.HasFile()).To(BeFalse())
			})
		})

		When("the percentage is empty", func() {
			BeforeEach(func() {
				form.Pct = ""
			})

			JustBeforeEach(func() {
				err = flow.Submit(ctx, form)
			})

			It("should default to 20", func() {
				Expect(st.updates[0].Data.Pct).To(Equal(20))
			})
		})

		When("the amount is not a number", func() {
			BeforeEach(func() {
				form.Amount = "abc"
			})

			JustBeforeEach(func() {
				err = flow.Submit(ctx, form)
			})

			It("should send zero", func() {
				Expect(st.updates[0].Data.Amount).To(Equal(0))
			})
		})

		When("the session has no email", func() {
			BeforeEach(func() {
				sess = session.Static{Current: bill.User{Type: bill.UserEmployee}}
			})

			JustBeforeEach(func() {
				err = flow.Submit(ctx, form)
			})

			It("should send an empty email", func() {
				Expect(err).NotTo(HaveOccurred())
				Expect(st.updates[0].Data.Email).To(BeEmpty())
			})
		})

		When("the store fails", func() {
			var storeErr error

			BeforeEach(func() {
				storeErr = store.NewError(500, "Erreur 500")
				st.updateErr = storeErr
			})

			JustBeforeEach(func() {
				Expect(flow.ChangeFile(ctx, store.File{Name: "valid.png", Data: []byte("image")})).To(Equal(FileUploaded))
				err = flow.Submit(ctx, form)
			})

			It("returns the error unchanged", func() {
				Expect(err).To(Equal(storeErr))
			})

			It("should keep the form populated", func() {
				Expect(flow.View().Form).To(Equal(form))
				Expect(flow.View().Upload.Key).To(Equal("1234"))
			})

			It("should not navigate", func() {
				Expect(navigator.paths).To(BeEmpty())
			})

			It("should allow resubmission", func() {
				Expect(flow.State()).To(Equal(StateEditing))
				st.updateErr = nil
				Expect(flow.Submit(ctx, form)).To(Succeed())
				Expect(navigator.paths).To(Equal([]string{PathBills}))
			})
		})

		When("no store is configured", func() {
			JustBeforeEach(func() {
				flow = StartNewBill(nil, sess, navigator, nil)
				err = flow.Submit(ctx, form)
			})

			It("should return ErrNoStore", func() {
				Expect(err).To(MatchError(ErrNoStore))
				Expect(navigator.paths).To(BeEmpty())
			})
		})
	})
})
